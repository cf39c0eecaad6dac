// Package link decodes proxy share-links (ss://, ssr://, vmess://, vless://,
// trojan://, hysteria2://) into normalized proxy records, and extracts them
// in bulk from plain or base64 subscription text.
package link

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/John-Robertt/subhub/internal/model"
)

// Scheme is the closed set of share-link schemes this package understands.
type Scheme int

const (
	SchemeUnknown Scheme = iota
	SchemeHysteria2
	SchemeVmess
	SchemeVless
	SchemeTrojan
	SchemeSS
	SchemeSSR
)

func (s Scheme) String() string {
	switch s {
	case SchemeHysteria2:
		return "hysteria2"
	case SchemeVmess:
		return "vmess"
	case SchemeVless:
		return "vless"
	case SchemeTrojan:
		return "trojan"
	case SchemeSS:
		return "ss"
	case SchemeSSR:
		return "ssr"
	default:
		return "unknown"
	}
}

// ParseScheme returns the scheme of a link. Matching is case-insensitive and
// "hy2" is an alias of hysteria2.
func ParseScheme(link string) Scheme {
	name, _, ok := strings.Cut(strings.TrimSpace(link), "://")
	if !ok {
		return SchemeUnknown
	}
	switch strings.ToLower(name) {
	case "hysteria2", "hy2":
		return SchemeHysteria2
	case "vmess":
		return SchemeVmess
	case "vless":
		return SchemeVless
	case "trojan":
		return SchemeTrojan
	case "ss":
		return SchemeSS
	case "ssr":
		return SchemeSSR
	default:
		return SchemeUnknown
	}
}

type DecodeError struct {
	AppError model.AppError
	Cause    error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// Decode turns one share-link into a proxy record. The returned proxy has no
// ID or Source; its Config starts with name, type, server, port followed by
// the scheme specific keys.
//
// Every failure is a *DecodeError.
func Decode(link string) (model.Proxy, error) {
	s := strings.TrimSpace(stripUTF8BOM(link))
	if s == "" {
		return model.Proxy{}, newDecodeError(s, "DECODE_ERROR", "链接为空", nil)
	}

	var (
		cfg model.Fields
		err error
	)
	switch ParseScheme(s) {
	case SchemeHysteria2:
		cfg, err = decodeHysteria2(s)
	case SchemeVmess:
		cfg, err = decodeVmess(s)
	case SchemeVless:
		cfg, err = decodeVless(s)
	case SchemeTrojan:
		cfg, err = decodeTrojan(s)
	case SchemeSS:
		cfg, err = decodeSS(s)
	case SchemeSSR:
		cfg, err = decodeSSR(s)
	default:
		return model.Proxy{}, newDecodeError(s, "UNSUPPORTED_SCHEME", "不支持的链接协议", nil)
	}
	if err != nil {
		return model.Proxy{}, err
	}
	return model.NewProxy(cfg), nil
}

// uriParts is a share-link split the way most schemes need it. Splitting is
// done by hand because net/url rejects semicolons in queries (SIP002 plugin
// values) and base64 authorities.
type uriParts struct {
	scheme   string
	body     string // between "://" and the first '?' or '#'
	query    url.Values
	fragment string // percent-decoded, trimmed
}

func splitURI(s string) uriParts {
	scheme, rest, _ := strings.Cut(s, "://")

	var p uriParts
	p.scheme = strings.ToLower(scheme)

	rest, frag, hasFrag := strings.Cut(rest, "#")
	if hasFrag {
		if decoded, err := url.PathUnescape(frag); err == nil {
			frag = decoded
		}
		p.fragment = strings.TrimSpace(frag)
	}

	rest, query, _ := strings.Cut(rest, "?")
	p.query = parseQuery(query)
	p.body = rest
	return p
}

// authority splits "userinfo@host:port[/path]". userinfo is percent-decoded
// and the path is dropped.
func (p uriParts) authority() (userinfo string, hostPort string, ok bool) {
	at := strings.LastIndex(p.body, "@")
	if at < 0 {
		return "", trimPath(p.body), false
	}
	userinfo = p.body[:at]
	if decoded, err := url.PathUnescape(userinfo); err == nil {
		userinfo = decoded
	}
	return userinfo, trimPath(p.body[at+1:]), true
}

func trimPath(hostPort string) string {
	if idx := strings.IndexByte(hostPort, '/'); idx >= 0 {
		return hostPort[:idx]
	}
	return hostPort
}

// parseQuery is lenient: only '&' separates pairs, keys without '=' map to
// "", and values that fail to percent-decode are kept raw.
func parseQuery(query string) url.Values {
	out := url.Values{}
	if query == "" {
		return out
	}
	for _, part := range strings.Split(query, "&") {
		if part == "" {
			continue
		}
		kRaw, vRaw, _ := strings.Cut(part, "=")
		k, err := url.PathUnescape(kRaw)
		if err != nil {
			k = kRaw
		}
		v, err := url.PathUnescape(vRaw)
		if err != nil {
			v = vRaw
		}
		out.Add(k, v)
	}
	return out
}

func firstQuery(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// insecure reports whether any of the allow-insecure spellings is "1"/"true".
func insecure(q url.Values) bool {
	for _, k := range []string{"insecure", "allowInsecure", "allowinsecure"} {
		v := strings.TrimSpace(q.Get(k))
		if v == "1" || strings.EqualFold(v, "true") {
			return true
		}
	}
	return false
}

func newDecodeError(link string, code string, message string, cause error) error {
	return &DecodeError{
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   "decode",
			Snippet: truncateSnippet(link, 200),
		},
		Cause: cause,
	}
}
