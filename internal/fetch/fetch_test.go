package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/subhub/internal/config"
)

func wantFetchError(t *testing.T, err error, code, stage string) {
	t.Helper()
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	if fe.AppError.Code != code {
		t.Fatalf("code=%q, want=%q", fe.AppError.Code, code)
	}
	if fe.AppError.Stage != stage {
		t.Fatalf("stage=%q, want=%q", fe.AppError.Stage, stage)
	}
}

func TestFetchText_OKWithUserAgent(t *testing.T) {
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("proxies: []\n"))
	}))
	defer ts.Close()

	text, err := FetchText(context.Background(), KindUpstream, ts.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "proxies: []\n" {
		t.Fatalf("text=%q", text)
	}
	if gotUA != DefaultUserAgent {
		t.Fatalf("user-agent=%q, want=%q", gotUA, DefaultUserAgent)
	}
}

func TestFetchText_UnsupportedScheme(t *testing.T) {
	_, err := FetchText(context.Background(), KindUpstream, "file:///etc/passwd")
	wantFetchError(t, err, "INVALID_ARGUMENT", "fetch_upstream")
}

func TestFetchText_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := FetchText(context.Background(), KindCustomSet, ts.URL)
	wantFetchError(t, err, "FETCH_FAILED", "fetch_customset")
}

func TestFetchText_TooLarge(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 32)))
	}))
	defer ts.Close()

	opt := OptionsFrom(config.Fetch{MaxBytes: 10})
	_, err := FetchTextWithOptions(context.Background(), KindCustomSet, ts.URL, opt)
	wantFetchError(t, err, "TOO_LARGE", "fetch_customset")
}

func TestFetchText_InvalidUTF8(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 0xff is always invalid in UTF-8.
		_, _ = w.Write([]byte{0xff, 0xfe, 0xfd})
	}))
	defer ts.Close()

	_, err := FetchText(context.Background(), KindUpstream, ts.URL)
	wantFetchError(t, err, "FETCH_INVALID_UTF8", "fetch_upstream")
}

func TestFetchText_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	_, err := FetchTextWithOptions(context.Background(), KindUpstream, ts.URL, Options{Timeout: 50 * time.Millisecond})
	wantFetchError(t, err, "FETCH_TIMEOUT", "fetch_upstream")
}

func TestFetchText_TooManyRedirects(t *testing.T) {
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, ts.URL, http.StatusFound)
	}))
	defer ts.Close()

	_, err := FetchTextWithOptions(context.Background(), KindUpstream, ts.URL, Options{MaxRedirects: 2})
	wantFetchError(t, err, "FETCH_FAILED", "fetch_upstream")
}

func TestFetchText_RedirectToNonHTTP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "file:///etc/passwd", http.StatusFound)
	}))
	defer ts.Close()

	_, err := FetchTextWithOptions(context.Background(), KindUpstream, ts.URL, Options{MaxRedirects: 5})
	wantFetchError(t, err, "INVALID_ARGUMENT", "fetch_upstream")
}
