package authsdk

import (
	"net/url"
	"sync"
)

// Location is the page address the SDK runs under. The SDK reads hand-off
// parameters from it once and strips them with ReplaceURL, which must not
// trigger a navigation.
type Location interface {
	URL() *url.URL
	ReplaceURL(u *url.URL)
}

// Navigator performs top-level navigations, e.g. the post-consent redirect.
type Navigator interface {
	Navigate(target string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(target string) error

func (f NavigatorFunc) Navigate(target string) error { return f(target) }

// Hand-off query parameters.
const (
	paramSID          = "sid"
	paramRefreshToken = "refresh_token"
)

// MemoryLocation is a Location held in memory. Used by the CLI and tests.
type MemoryLocation struct {
	mu  sync.Mutex
	cur *url.URL
}

// NewMemoryLocation parses raw. An unparsable raw yields an empty URL.
func NewMemoryLocation(raw string) *MemoryLocation {
	u, err := url.Parse(raw)
	if err != nil {
		u = &url.URL{}
	}
	return &MemoryLocation{cur: u}
}

func (l *MemoryLocation) URL() *url.URL {
	l.mu.Lock()
	defer l.mu.Unlock()
	u := *l.cur
	return &u
}

func (l *MemoryLocation) ReplaceURL(u *url.URL) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := *u
	l.cur = &c
}

// takeHandoff returns the sid/refresh_token pair from loc, if both are
// present, and strips them from the visible URL. Other parameters stay.
func takeHandoff(loc Location) (sid, refreshToken string, ok bool) {
	if loc == nil {
		return "", "", false
	}

	u := loc.URL()
	if u == nil {
		return "", "", false
	}
	q := u.Query()
	sid, refreshToken = q.Get(paramSID), q.Get(paramRefreshToken)
	if sid == "" || refreshToken == "" {
		return "", "", false
	}

	q.Del(paramSID)
	q.Del(paramRefreshToken)
	u.RawQuery = q.Encode()
	loc.ReplaceURL(u)
	return sid, refreshToken, true
}
