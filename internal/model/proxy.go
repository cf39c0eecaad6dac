package model

import (
	"strconv"
	"strings"
	"time"
)

// Proxy is one normalized proxy record owned by a source.
//
// Config is the full key/value map for the protocol and is the source of
// truth. Name and Type mirror config.name / config.type; Server and Port are
// denormalized copies of config.server / config.port kept for indexing only.
type Proxy struct {
	ID   string
	Name string
	Type string

	Server string
	Port   int

	Config Fields

	Source    string
	CreatedAt time.Time
}

// NewProxy builds a Proxy around config and syncs the typed fields from it.
func NewProxy(config Fields) Proxy {
	p := Proxy{Config: config}
	p.Sync()
	return p
}

// Sync re-derives Name/Type/Server/Port from Config. A Name or Type that is
// set on the struct but missing from Config is written back into Config.
func (p *Proxy) Sync() {
	if v, ok := p.Config.Get("name"); ok {
		p.Name = scalarString(v)
	} else if p.Name != "" {
		p.Config = p.Config.Set("name", p.Name)
	}
	if v, ok := p.Config.Get("type"); ok {
		p.Type = scalarString(v)
	} else if p.Type != "" {
		p.Config = p.Config.Set("type", p.Type)
	}

	p.Server = ""
	if v, ok := p.Config.Get("server"); ok {
		p.Server = scalarString(v)
	}
	p.Port = 0
	if v, ok := p.Config.Get("port"); ok {
		p.Port = ScalarInt(v)
	}
}

// ScalarInt converts a YAML scalar (int, float, numeric string) to int.
// Anything else yields 0.
func ScalarInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

func scalarString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case int:
		return strconv.Itoa(s)
	case bool:
		return strconv.FormatBool(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}
