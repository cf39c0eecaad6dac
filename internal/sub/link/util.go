package link

import (
	"encoding/base64"
	"errors"
	"net"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/John-Robertt/subhub/internal/model"
	"github.com/tidwall/gjson"
)

func parseHostPort(s string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return "", 0, err
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "", 0, errors.New("empty host")
	}
	port, err := parsePort(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if port < 1 || port > 65535 {
		return 0, errors.New("port out of range")
	}
	return port, nil
}

// decodeB64ToBytes accepts the standard and URL-safe alphabets, with or
// without padding.
func decodeB64ToBytes(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty base64 input")
	}
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func decodeB64ToString(s string) (string, error) {
	b, err := decodeB64ToBytes(s)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.New("decoded base64 is not valid utf-8")
	}
	return string(b), nil
}

// decodeURLSafeB64 decodes the ssr flavour: '-'/'_' alphabet with the '='
// padding often stripped.
func decodeURLSafeB64(s string) (string, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "-", "+")
	s = strings.ReplaceAll(s, "_", "/")
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}
	return decodeB64ToString(s)
}

func decodeSubscriptionBase64(s string) (string, error) {
	b, err := decodeB64ToBytes(removeSpaceTabCRLF(s))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.New("decoded subscription is not valid utf-8")
	}
	return string(b), nil
}

func removeSpaceTabCRLF(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func stripUTF8BOM(s string) string {
	return strings.TrimPrefix(s, "\uFEFF")
}

func truncateSnippet(s string, max int) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// jsonValue converts a gjson result into the same ordered shapes the YAML
// decoder produces, so JSON plugin options render like any other config.
func jsonValue(r gjson.Result) any {
	switch {
	case r.IsObject():
		out := model.Fields{}
		r.ForEach(func(k, v gjson.Result) bool {
			out = out.Set(k.String(), jsonValue(v))
			return true
		})
		return out
	case r.IsArray():
		out := []any{}
		r.ForEach(func(_, v gjson.Result) bool {
			out = append(out, jsonValue(v))
			return true
		})
		return out
	}
	switch r.Type {
	case gjson.Number:
		if f := r.Float(); f == float64(int64(f)) {
			return int(r.Int())
		}
		return r.Float()
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.Null:
		return nil
	default:
		return r.String()
	}
}
