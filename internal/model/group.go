package model

import "time"

// Group is a proxy-group record. Proxies holds member names (proxy or group
// names); they are resolved by the client, never at ingestion.
type Group struct {
	ID   string
	Name string
	Type string // "select" | "url-test" | "fallback" | "load-balance" | ...

	Proxies []string

	// Config carries every other key of the group entry (url, interval,
	// tolerance, ...).
	Config Fields

	Source    string
	Priority  int // position within the source document
	CreatedAt time.Time
}

// Document renders the group the way it appears in a client config:
// name, type and proxies first, then the extra config keys.
func (g Group) Document() Fields {
	members := make([]any, 0, len(g.Proxies))
	for _, m := range g.Proxies {
		members = append(members, m)
	}
	out := make(Fields, 0, len(g.Config)+3)
	out = append(out,
		Field{Key: "name", Value: g.Name},
		Field{Key: "type", Value: g.Type},
		Field{Key: "proxies", Value: members},
	)
	for _, f := range g.Config {
		out = out.Set(f.Key, f.Value)
	}
	return out
}
