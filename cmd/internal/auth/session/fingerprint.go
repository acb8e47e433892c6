package session

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
)

// FingerprintInput is everything that identifies a request for memoisation.
type FingerprintInput struct {
	Method     string
	URL        string
	Header     http.Header
	ClientAddr string
	Token      string
}

// Fingerprint returns a hex SHA-256 digest of in. Header order and
// header-name case do not affect the result.
func Fingerprint(in FingerprintInput) string {
	h := sha256.New()
	write := func(s string) {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0})
	}

	write(strings.ToUpper(in.Method))
	write(in.URL)
	write(in.ClientAddr)
	write(in.Token)

	names := make([]string, 0, len(in.Header))
	canon := make(map[string][]string, len(in.Header))
	for k, vs := range in.Header {
		ck := http.CanonicalHeaderKey(k)
		if _, ok := canon[ck]; !ok {
			names = append(names, ck)
		}
		canon[ck] = append(canon[ck], vs...)
	}
	sort.Strings(names)
	for _, k := range names {
		write(k)
		write(strings.Join(canon[k], "\x1f"))
	}

	return hex.EncodeToString(h.Sum(nil))
}

// RequestFingerprint fingerprints r as seen from clientAddr, carrying sealedToken.
func RequestFingerprint(r *http.Request, clientAddr, sealedToken string) string {
	u := ""
	if r.URL != nil {
		u = r.URL.String()
	}
	return Fingerprint(FingerprintInput{
		Method:     r.Method,
		URL:        u,
		Header:     r.Header,
		ClientAddr: clientAddr,
		Token:      sealedToken,
	})
}
