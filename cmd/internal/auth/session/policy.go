package session

import "time"

// ShouldRefresh reports whether a session expiring at expiresAt, last reset
// to a full maxAge lifetime, is due for extension at now.
//
// The due date is expiresAt - maxAge + updateAge, i.e. updateAge after the
// last reset. An updateAge of zero makes the session due from its reset on;
// updateAge >= maxAge makes every request due.
func ShouldRefresh(expiresAt time.Time, maxAge, updateAge time.Duration, now time.Time) bool {
	if updateAge >= maxAge {
		return true
	}
	due := expiresAt.Add(updateAge - maxAge)
	return !due.After(now)
}

// NextExpiry returns the expiry of a session renewed at now, at millisecond resolution.
func NextExpiry(maxAge time.Duration, now time.Time) time.Time {
	return now.Add(maxAge).Truncate(time.Millisecond)
}

// maxAgeSeconds converts a remaining lifetime to a cookie Max-Age value.
func maxAgeSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second/2) / time.Second)
}
