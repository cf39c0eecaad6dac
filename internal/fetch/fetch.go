// Package fetch downloads upstream documents and custom sets over HTTP(S).
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/John-Robertt/subhub/internal/config"
	"github.com/John-Robertt/subhub/internal/model"
)

type Kind int

const (
	KindUpstream Kind = iota
	KindCustomSet
)

func (k Kind) stage() string {
	switch k {
	case KindUpstream:
		return "fetch_upstream"
	case KindCustomSet:
		return "fetch_customset"
	default:
		return "fetch"
	}
}

func (k Kind) defaultMaxBytes() int64 {
	switch k {
	case KindUpstream:
		return 5 * 1024 * 1024
	default:
		return 1 * 1024 * 1024
	}
}

// DefaultUserAgent makes providers that sniff the client answer with a
// Clash YAML document rather than a bare link list.
const DefaultUserAgent = "clash.meta"

type Options struct {
	Timeout      time.Duration // default 15s
	MaxBytes     int64         // default per kind
	MaxRedirects int           // default 5
	UserAgent    string        // default DefaultUserAgent
}

// OptionsFrom takes the limits from the fetch section of the config.
func OptionsFrom(cfg config.Fetch) Options {
	return Options{Timeout: cfg.Timeout, MaxBytes: cfg.MaxBytes}
}

type FetchError struct {
	AppError model.AppError
	Cause    error
}

func (e *FetchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

func newFetchError(stage, rawURL, code, message string, cause error) *FetchError {
	return &FetchError{
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   stage,
			URL:     rawURL,
		},
		Cause: cause,
	}
}

var (
	errTooManyRedirects   = errors.New("too many redirects")
	errRedirectBadScheme  = errors.New("redirect target scheme is not http/https")
	errInvalidURLOrScheme = errors.New("invalid url or scheme")
)

func FetchText(ctx context.Context, kind Kind, rawURL string) (string, error) {
	return FetchTextWithOptions(ctx, kind, rawURL, Options{})
}

func FetchTextWithOptions(ctx context.Context, kind Kind, rawURL string, opt Options) (string, error) {
	stage := kind.stage()

	timeout := opt.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	maxRedirects := opt.MaxRedirects
	if maxRedirects == 0 {
		maxRedirects = 5
	}
	maxBytes := opt.MaxBytes
	if maxBytes == 0 {
		maxBytes = kind.defaultMaxBytes()
	}
	userAgent := opt.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if maxBytes <= 0 {
		return "", newFetchError(stage, rawURL, "INVALID_ARGUMENT", "响应大小上限必须大于 0", nil)
	}

	u, err := url.Parse(rawURL)
	if err != nil || u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", newFetchError(stage, rawURL, "INVALID_ARGUMENT", "仅允许 http/https URL", errors.Join(errInvalidURLOrScheme, err))
	}

	client := &http.Client{
		Timeout:   timeout,
		Transport: http.DefaultTransport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// 1st redirect => len(via)==1.
			if len(via) > maxRedirects {
				return errTooManyRedirects
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return errRedirectBadScheme
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", newFetchError(stage, rawURL, "INVALID_ARGUMENT", "请求 URL 不合法", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		switch {
		case errors.Is(err, errTooManyRedirects):
			return "", newFetchError(stage, rawURL, "FETCH_FAILED", fmt.Sprintf("重定向次数超过上限（>%d）", maxRedirects), err)
		case errors.Is(err, errRedirectBadScheme):
			return "", newFetchError(stage, rawURL, "INVALID_ARGUMENT", "重定向目标仅允许 http/https", err)
		case isTimeout(err):
			return "", newFetchError(stage, rawURL, "FETCH_TIMEOUT", "拉取远程资源超时", err)
		default:
			return "", newFetchError(stage, rawURL, "FETCH_FAILED", "拉取远程资源失败", err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", newFetchError(stage, rawURL, "FETCH_FAILED", fmt.Sprintf("上游返回非 2xx 状态码：%d", resp.StatusCode), nil)
	}

	// Read at most maxBytes+1 to detect overflow deterministically.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		if isTimeout(err) {
			return "", newFetchError(stage, rawURL, "FETCH_TIMEOUT", "拉取远程资源超时", err)
		}
		return "", newFetchError(stage, rawURL, "FETCH_FAILED", "读取上游响应失败", err)
	}
	if int64(len(body)) > maxBytes {
		return "", newFetchError(stage, rawURL, "TOO_LARGE", fmt.Sprintf("远程资源过大（>%d bytes）", maxBytes), nil)
	}
	if !utf8.Valid(body) {
		return "", newFetchError(stage, rawURL, "FETCH_INVALID_UTF8", "远程资源不是合法 UTF-8 文本", nil)
	}

	return string(body), nil
}

// isTimeout sees through *url.Error and friends.
func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
