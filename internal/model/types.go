// Package model holds the value types shared by the cache, session and
// acquisition packages.
package model

import (
	"strings"
	"time"
)

// Cookie is a single browser cookie scoped to the portal domain.
type Cookie struct {
	Name   string `json:"name" yaml:"name"`
	Value  string `json:"value" yaml:"value"`
	Domain string `json:"domain,omitempty" yaml:"domain,omitempty"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
}

// SessionState is the authenticated cookie set obtained from the portal.
type SessionState struct {
	Cookies       []Cookie  `json:"cookies"`
	EstablishedAt time.Time `json:"established_at"`
}

// Empty reports whether the session carries no cookies.
func (s *SessionState) Empty() bool {
	return s == nil || len(s.Cookies) == 0
}

// Header renders the cookies as an HTTP Cookie header value.
func (s *SessionState) Header() string {
	if s == nil {
		return ""
	}
	return SerializeCookies(s.Cookies)
}

// Clone returns a deep copy so callers cannot mutate cached state.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	out := &SessionState{EstablishedAt: s.EstablishedAt}
	out.Cookies = append([]Cookie(nil), s.Cookies...)
	return out
}

// ParseCookies parses a serialized "a=b; c=d" string into cookies scoped to
// domain. Malformed pairs are skipped.
func ParseCookies(serialized, domain string) []Cookie {
	var cookies []Cookie
	for _, part := range strings.Split(serialized, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		cookies = append(cookies, Cookie{
			Name:   name,
			Value:  strings.TrimSpace(value),
			Domain: domain,
			Path:   "/",
		})
	}
	return cookies
}

// SerializeCookies is the inverse of ParseCookies.
func SerializeCookies(cookies []Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// EventDetail is the enrichment fetched for a single schedule entry.
type EventDetail struct {
	Teacher string `json:"teacher"`
	Room    string `json:"room"`
}

// Label renders the detail as a short annotation, empty when nothing is known.
func (d EventDetail) Label() string {
	switch {
	case d.Teacher != "" && d.Room != "":
		return d.Teacher + " | " + d.Room
	case d.Teacher != "":
		return d.Teacher
	default:
		return d.Room
	}
}

// Artifact describes a stored planning image.
type Artifact struct {
	Key        string    `json:"key"`
	Location   string    `json:"location"`
	CapturedAt time.Time `json:"captured_at"`
	FromCache  bool      `json:"from_cache"`
}
