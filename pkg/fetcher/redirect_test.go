package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func requestURL(t *testing.T, base, path string) *url.URL {
	t.Helper()
	u, err := url.Parse(base + path)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestFetchFollowsRedirectChain(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "payload")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	follower := newTestFollower(testLocation(t, srv.URL), 5)
	body, err := follower.fetch(context.Background(), requestURL(t, srv.URL, "/a"))
	if err != nil {
		t.Fatalf("fetch() error: %v", err)
	}
	if string(body) != "payload" {
		t.Errorf("fetch() = %q, want \"payload\"", body)
	}
}

func TestFetchRedirectLimit(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Redirect(w, r, "/again", http.StatusFound)
	}))
	defer srv.Close()

	follower := newTestFollower(testLocation(t, srv.URL), 3)
	_, err := follower.fetch(context.Background(), requestURL(t, srv.URL, "/loop"))

	var redirectErr *RedirectError
	if !errors.As(err, &redirectErr) {
		t.Fatalf("fetch() error = %v, want RedirectError", err)
	}
	if redirectErr.Limit != 3 {
		t.Errorf("Limit = %d, want 3", redirectErr.Limit)
	}
	if hits != 3 {
		t.Errorf("server hit %d times, want 3", hits)
	}
}

func TestFetchCredentialsSurviveSameHostRedirect(t *testing.T) {
	var auths []string
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		auths = append(auths, r.Header.Get("Authorization"))
		http.Redirect(w, r, "/moved", http.StatusFound)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		auths = append(auths, r.Header.Get("Authorization"))
		fmt.Fprint(w, "ok")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	uri := requestURL(t, srv.URL, "/start")
	uri.User = url.UserPassword("deploy", "s3cret")

	follower := newTestFollower(testLocation(t, srv.URL), 5)
	if _, err := follower.fetch(context.Background(), uri); err != nil {
		t.Fatalf("fetch() error: %v", err)
	}

	if len(auths) != 2 {
		t.Fatalf("got %d requests, want 2", len(auths))
	}
	if auths[0] == "" || auths[0] != auths[1] {
		t.Errorf("credentials not carried across same-host redirect: %q vs %q", auths[0], auths[1])
	}
}

func TestFetchCredentialsDroppedAcrossHosts(t *testing.T) {
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("credentials leaked across hosts: %q", got)
		}
		fmt.Fprint(w, "ok")
	}))
	defer other.Close()

	// The two servers differ only by port, which is enough to count as a
	// host boundary for credential scoping.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, other.URL+"/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	uri := requestURL(t, srv.URL, "/start")
	uri.User = url.UserPassword("deploy", "s3cret")

	follower := newTestFollower(testLocation(t, srv.URL), 5)
	if _, err := follower.fetch(context.Background(), uri); err != nil {
		t.Fatalf("fetch() error: %v", err)
	}
}

func TestFetchStatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				var authErr *AuthError
				if !errors.As(err, &authErr) {
					t.Fatalf("error = %v, want AuthError", err)
				}
				if authErr.Host == "" {
					t.Error("AuthError.Host is empty")
				}
				if !IsAbort(err) {
					t.Error("AuthError should be abort class")
				}
			},
		},
		{
			name:   "payload too large",
			status: http.StatusRequestEntityTooLarge,
			check: func(t *testing.T, err error) {
				var fallback *FallbackError
				if !errors.As(err, &fallback) {
					t.Fatalf("error = %v, want FallbackError", err)
				}
				if fallback.Body != "too many gems" {
					t.Errorf("Body = %q", fallback.Body)
				}
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				var httpErr *HTTPError
				if !errors.As(err, &httpErr) {
					t.Fatalf("error = %v, want HTTPError", err)
				}
				if httpErr.Status != http.StatusInternalServerError {
					t.Errorf("Status = %d", httpErr.Status)
				}
				if IsAbort(err) {
					t.Error("HTTPError must not be abort class")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, "too many gems")
			}))
			defer srv.Close()

			follower := newTestFollower(testLocation(t, srv.URL), 5)
			_, err := follower.fetch(context.Background(), requestURL(t, srv.URL, "/x"))
			if err == nil {
				t.Fatal("fetch() should fail")
			}
			tt.check(t, err)
		})
	}
}
