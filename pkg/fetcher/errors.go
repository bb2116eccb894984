package fetcher

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"

	"github.com/quarrydev/quarry/pkg/source"
)

// ErrNetworkDown marks DNS or host-unreachable failures: the network is
// likely out, retry later. Wrapping errors carry the detail.
var ErrNetworkDown = errors.New("network is unreachable")

// CertificateError reports a failed TLS handshake or certificate
// verification against a registry. Never retried.
type CertificateError struct {
	Location *source.Location
	Err      error
}

func (e *CertificateError) Error() string {
	return fmt.Sprintf("could not verify the SSL certificate for %s: either you do not trust the registry's certificate, or the registry is misconfigured", e.Location.Safe())
}

func (e *CertificateError) Unwrap() error { return e.Err }

// AuthError reports a 401: the registry requires credentials that were not
// supplied. Abort class; never retried and never triggers index fallback.
type AuthError struct {
	Host string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication is required for %s: please supply credentials for this source", e.Host)
}

// BadAuthError reports rejected credentials (403 with credentials present).
// Abort class.
type BadAuthError struct {
	Host string
}

func (e *BadAuthError) Error() string {
	return fmt.Sprintf("bad username or password for %s: please double-check the configured credentials", e.Host)
}

// FallbackError reports a 413 from the dependency API: the request was too
// large and the caller should use the full index instead. Carries the
// response body for verbose diagnostics.
type FallbackError struct {
	Body string
}

func (e *FallbackError) Error() string { return "dependency API refused the request: " + e.Body }

// RedirectError reports a redirect chain exceeding the configured limit.
type RedirectError struct {
	Limit int
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("too many redirects (limit %d)", e.Limit)
}

// MalformedSpecError reports an unparseable specification entry, naming the
// offending gem so the registry operator can fix it.
type MalformedSpecError struct {
	Name string
	Err  error
}

func (e *MalformedSpecError) Error() string {
	return fmt.Sprintf("the specification for %s is malformed (%v): try again, or contact the registry operator", e.Name, e.Err)
}

func (e *MalformedSpecError) Unwrap() error { return e.Err }

// HTTPError is the generic failure for unexpected statuses and unclassified
// transport faults. Retryable.
type HTTPError struct {
	Status  int
	Snippet string
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("network error while fetching (%v)", e.Err)
	}
	return fmt.Sprintf("unexpected HTTP status %d (%s)", e.Status, e.Snippet)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// IsAbort reports whether err belongs to the abort class: failures that
// retrying or falling back to the full index cannot fix.
func IsAbort(err error) bool {
	var auth *AuthError
	var bad *BadAuthError
	return errors.As(err, &auth) || errors.As(err, &bad)
}

// classify maps a transport fault to the typed taxonomy using the fault's
// structure, never its message text. DNS resolution failures become
// ErrNetworkDown, TLS and certificate faults become CertificateError, and
// anything else is a retryable HTTPError.
func classify(err error, loc *source.Location) error {
	if err == nil {
		return nil
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %s", ErrNetworkDown, dnsErr.Name)
	}

	var certInvalid x509.CertificateInvalidError
	var unknownAuth x509.UnknownAuthorityError
	var hostname x509.HostnameError
	var recordHeader tls.RecordHeaderError
	var certVerify *tls.CertificateVerificationError
	if errors.As(err, &certInvalid) || errors.As(err, &unknownAuth) ||
		errors.As(err, &hostname) || errors.As(err, &recordHeader) ||
		errors.As(err, &certVerify) {
		return &CertificateError{Location: loc, Err: err}
	}

	return &HTTPError{Err: err}
}
