package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// snippetLimit bounds how much of an error response body is kept for
// diagnostics.
const snippetLimit = 512

// redirectFollower wraps the request executor with bounded redirect
// following. Credentials embedded in the original URI are copied to a
// redirect target only when it has exactly the same host; they never cross
// a host boundary.
type redirectFollower struct {
	exec  *requestExecutor
	limit int
}

// fetch GETs uri and follows redirects up to the configured limit,
// returning the terminal 2xx body.
func (f *redirectFollower) fetch(ctx context.Context, uri *url.URL) ([]byte, error) {
	return f.follow(ctx, uri, 0)
}

func (f *redirectFollower) follow(ctx context.Context, uri *url.URL, depth int) ([]byte, error) {
	if depth >= f.limit {
		return nil, &RedirectError{Limit: f.limit}
	}

	resp, err := f.exec.execute(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, classify(err, f.exec.loc)
		}
		return body, nil

	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		location := resp.Header.Get("Location")
		next, err := uri.Parse(location)
		if err != nil {
			return nil, &HTTPError{Status: resp.StatusCode, Snippet: "invalid redirect location " + location}
		}
		if uri.User != nil && next.Host == uri.Host {
			next.User = uri.User
		}
		return f.follow(ctx, next, depth+1)

	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return nil, &FallbackError{Body: snippet(resp.Body)}

	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &AuthError{Host: uri.Host}

	default:
		return nil, &HTTPError{Status: resp.StatusCode, Snippet: snippet(resp.Body)}
	}
}

func snippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, snippetLimit))
	return string(b)
}
