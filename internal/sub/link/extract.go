package link

import (
	"strings"

	"github.com/John-Robertt/subhub/internal/model"
)

// Result is the outcome of a batch extraction.
type Result struct {
	Proxies []model.Proxy
	// Skipped counts lines that looked like links ("://") but failed to decode.
	Skipped int
}

// ExtractLinks is Extract without the skip count.
func ExtractLinks(content string) []model.Proxy {
	return Extract(content).Proxies
}

// Extract decodes every share-link in content, which is either a
// newline-separated link list or the base64 encoding of one.
//
// The base64 form is only accepted when the decoded text contains "://" or
// "vmess:", because some plain link lists happen to be valid base64 too.
// Lines without "://" and lines that fail to decode are dropped; Extract
// never fails.
func Extract(content string) Result {
	s := strings.TrimSpace(stripUTF8BOM(content))
	if s == "" {
		return Result{Proxies: []model.Proxy{}}
	}
	if decoded, err := decodeSubscriptionBase64(s); err == nil && looksLikeLinks(decoded) {
		s = stripUTF8BOM(decoded)
	}

	lines := strings.Split(s, "\n")
	out := Result{Proxies: make([]model.Proxy, 0, len(lines))}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, "://") {
			continue
		}
		p, err := Decode(line)
		if err != nil {
			out.Skipped++
			continue
		}
		out.Proxies = append(out.Proxies, p)
	}
	return out
}

func looksLikeLinks(s string) bool {
	return strings.Contains(s, "://") || strings.Contains(strings.ToLower(s), "vmess:")
}
