package fetcher

import (
	"context"
	"net/http"
	"net/url"

	"github.com/quarrydev/quarry/pkg/source"
)

// requestExecutor issues single HTTP GETs over the session's connections,
// attaching basic-auth credentials embedded in the target URI and
// classifying transport faults.
type requestExecutor struct {
	conns     *connectionManager
	userAgent string
	loc       *source.Location
}

// execute performs one GET against uri. The caller owns the response body.
// Transport faults come back classified; HTTP statuses are returned as-is
// for the redirect follower to interpret.
func (r *requestExecutor) execute(ctx context.Context, uri *url.URL) (*http.Response, error) {
	// Credentials travel as an Authorization header, not in the request URL.
	target := *uri
	user := target.User
	target.User = nil

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, &HTTPError{Err: err}
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "*/*")

	if user != nil {
		// Userinfo is stored percent-encoded; BasicAuth wants the
		// decoded form.
		name := user.Username()
		pass, _ := user.Password()
		req.SetBasicAuth(name, pass)
	}

	client, err := r.conns.connectionFor(target.Host)
	if err != nil {
		return nil, &CertificateError{Location: r.loc, Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classify(err, r.loc)
	}
	return resp, nil
}
