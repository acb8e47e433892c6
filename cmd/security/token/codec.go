package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	paseto "aidanwoods.dev/go-paseto"
)

// Codec seals and opens cookie values. The cookie name is bound into the
// seal so a value cannot be replayed under a different cookie.
type Codec interface {
	Seal(name, value string) (string, error)
	Open(name, sealed string) (string, error)
}

// Codec kinds accepted by NewCodec.
const (
	CodecHMAC   = "hmac"
	CodecPaseto = "paseto"
)

// NewCodec builds a Codec of the given kind from a 32-byte key.
func NewCodec(kind string, key []byte) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", CodecHMAC:
		return NewHMACCodec(key)
	case CodecPaseto:
		return NewPasetoCodec(key)
	default:
		return nil, ErrUnknownCodec
	}
}

// HMACCodec produces "value.signature" where signature is base64url(HMAC-SHA256(name=value)).
// The value stays readable by the client; integrity is what it guarantees.
type HMACCodec struct {
	key []byte
}

// NewHMACCodec returns an HMACCodec. key must be at least MinKeyBytes long.
func NewHMACCodec(key []byte) (*HMACCodec, error) {
	if len(key) < MinKeyBytes {
		return nil, ErrKeyTooShort
	}
	return &HMACCodec{key: append([]byte(nil), key...)}, nil
}

// Seal signs value for cookie name.
func (c *HMACCodec) Seal(name, value string) (string, error) {
	if value == "" || strings.Contains(value, ".") {
		return "", ErrInvalidSealed
	}
	return value + "." + c.sign(name, value), nil
}

// Open verifies a sealed value for cookie name and returns the original value.
func (c *HMACCodec) Open(name, sealed string) (string, error) {
	i := strings.LastIndexByte(sealed, '.')
	if i <= 0 || i == len(sealed)-1 {
		return "", ErrInvalidSealed
	}
	value, sig := sealed[:i], sealed[i+1:]
	want := c.sign(name, value)
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return "", ErrInvalidSealed
	}
	return value, nil
}

func (c *HMACCodec) sign(name, value string) string {
	m := hmac.New(sha256.New, c.key)
	_, _ = m.Write([]byte(name))
	_, _ = m.Write([]byte{'='})
	_, _ = m.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(m.Sum(nil))
}

// PasetoCodec encrypts values as PASETO v4.local tokens, using the cookie name
// as implicit assertion. The client cannot read the sealed value.
type PasetoCodec struct {
	key paseto.V4SymmetricKey
}

// NewPasetoCodec returns a PasetoCodec. key must be exactly 32 bytes.
func NewPasetoCodec(key []byte) (*PasetoCodec, error) {
	if len(key) < MinKeyBytes {
		return nil, ErrKeyTooShort
	}
	k, err := paseto.V4SymmetricKeyFromBytes(key[:32])
	if err != nil {
		return nil, err
	}
	return &PasetoCodec{key: k}, nil
}

// Seal encrypts value for cookie name.
func (c *PasetoCodec) Seal(name, value string) (string, error) {
	if value == "" {
		return "", ErrInvalidSealed
	}
	tok := paseto.NewToken()
	if err := tok.Set("v", value); err != nil {
		return "", err
	}
	return tok.V4Encrypt(c.key, []byte(name)), nil
}

// Open decrypts a sealed value for cookie name.
func (c *PasetoCodec) Open(name, sealed string) (string, error) {
	p := paseto.NewParserWithoutExpiryCheck()
	parsed, err := p.ParseV4Local(c.key, sealed, []byte(name))
	if err != nil {
		return "", ErrInvalidSealed
	}
	v, err := parsed.GetString("v")
	if err != nil || v == "" {
		return "", ErrInvalidSealed
	}
	return v, nil
}
