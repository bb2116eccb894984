// Package source models registry locations and the credentials attached to
// them.
//
// A Location is a parsed registry URI that may carry embedded basic-auth
// userinfo. The credential-stripped form is always derivable via [Location.Safe]
// and is the only form ever logged or displayed; String returns the safe form
// so a Location can never leak credentials through formatting.
//
// Resolve applies mirror substitution and configured credentials to a raw
// source URI, producing the Location a fetch session works against.
package source

import (
	"fmt"
	"net/url"
	"strings"
)

// Location is a registry URI, possibly with embedded basic-auth credentials.
// It is constructed once per fetch session and immutable thereafter.
type Location struct {
	url *url.URL
}

// Parse builds a Location from a raw URI string.
func Parse(raw string) (*Location, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid source %q: %w", raw, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("invalid source %q: missing scheme", raw)
	}
	return &Location{url: u}, nil
}

// URL returns a copy of the underlying URL, credentials included.
// Callers must not log the returned value; use Safe for display.
func (l *Location) URL() *url.URL {
	u := *l.url
	return &u
}

// Host returns the host (with port, if any) of the location.
func (l *Location) Host() string { return l.url.Host }

// Scheme returns the URI scheme.
func (l *Location) Scheme() string { return l.url.Scheme }

// HasCredentials reports whether the location carries embedded userinfo.
func (l *Location) HasCredentials() bool { return l.url.User != nil }

// Credentials returns the percent-decoded username and password embedded in
// the location, or empty strings when absent.
func (l *Location) Credentials() (user, pass string) {
	if l.url.User == nil {
		return "", ""
	}
	user = l.url.User.Username()
	pass, _ = l.url.User.Password()
	return user, pass
}

// WithCredentials returns a new Location with userinfo replaced.
func (l *Location) WithCredentials(user, pass string) *Location {
	u := *l.url
	if pass == "" {
		u.User = url.User(user)
	} else {
		u.User = url.UserPassword(user, pass)
	}
	return &Location{url: &u}
}

// Join returns a new Location with the given path appended.
func (l *Location) Join(elem ...string) *Location {
	u := *l.url
	joined := l.url.JoinPath(elem...)
	u.Path = joined.Path
	u.RawPath = joined.RawPath
	return &Location{url: &u}
}

// Safe returns the credential-stripped URI string for display and logging.
func (l *Location) Safe() string {
	u := *l.url
	u.User = nil
	return u.String()
}

// String formats a Location for display. It always returns the safe form.
func (l *Location) String() string { return l.Safe() }

// CredentialSource supplies per-host or per-URL credentials and mirror
// substitution rules, typically backed by the TOML configuration.
type CredentialSource interface {
	// CredentialsFor returns "user:pass" (or a bare token) for the given
	// key, which is tried first as the full safe URL and then as the host.
	CredentialsFor(key string) (string, bool)

	// MirrorFor returns a replacement base URI for the given safe source
	// URL, or ok=false when no mirror is configured.
	MirrorFor(sourceURL string) (string, bool)
}

// Resolve produces the session Location for a raw source URI: mirror
// substitution first, then credential lookup. Credentials already embedded
// in the URI win over configured ones. Lookup tries the full URL before the
// bare host, so URL-scoped credentials shadow host-scoped ones.
func Resolve(raw string, creds CredentialSource) (*Location, error) {
	loc, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	if creds == nil {
		return loc, nil
	}

	if mirror, ok := creds.MirrorFor(loc.Safe()); ok {
		mirrored, err := Parse(mirror)
		if err != nil {
			return nil, fmt.Errorf("invalid mirror for %s: %w", loc.Safe(), err)
		}
		loc = mirrored
	}

	if loc.HasCredentials() {
		return loc, nil
	}

	cred, ok := creds.CredentialsFor(loc.Safe())
	if !ok {
		cred, ok = creds.CredentialsFor(loc.Host())
	}
	if ok {
		user, pass, _ := strings.Cut(cred, ":")
		loc = loc.WithCredentials(user, pass)
	}
	return loc, nil
}
