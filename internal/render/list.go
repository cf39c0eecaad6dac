package render

import (
	"encoding/base64"
	"strings"

	"github.com/John-Robertt/subhub/internal/model"
	"github.com/John-Robertt/subhub/internal/sub/link"
)

// ListLinks encodes every proxy of doc as a share-link. Proxies of a type
// without a share-link form, or missing server/port, are counted in skipped.
func ListLinks(doc model.Fields) (links []string, skipped int) {
	v, _ := doc.Get("proxies")
	items, _ := v.([]any)
	for _, item := range items {
		cfg, ok := item.(model.Fields)
		if !ok {
			skipped++
			continue
		}
		s, err := link.Encode(model.NewProxy(cfg))
		if err != nil {
			skipped++
			continue
		}
		links = append(links, s)
	}
	return links, skipped
}

func renderList(doc model.Fields) ([]byte, error) {
	links, _ := ListLinks(doc)
	text := strings.Join(links, "\n")
	out := make([]byte, base64.StdEncoding.EncodedLen(len(text)))
	base64.StdEncoding.Encode(out, []byte(text))
	return out, nil
}
