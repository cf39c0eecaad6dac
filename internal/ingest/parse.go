// Package ingest turns an upstream document (a Clash-style YAML config, or a
// plain/base64 list of share-links) into per-source records and stores them.
package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/John-Robertt/subhub/internal/model"
	"github.com/John-Robertt/subhub/internal/sub/link"
	"gopkg.in/yaml.v3"
)

const (
	keyProxies     = "proxies"
	keyProxyGroups = "proxy-groups"
	keyRules       = "rules"

	defaultProxyName = "Unnamed"
	defaultProxyType = "unknown"
	defaultGroupName = "Unnamed Group"
	defaultGroupType = "select"
)

type IngestError struct {
	Source   string
	AppError model.AppError
	Cause    error
}

func (e *IngestError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s: %s", e.Source, e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %s: %v", e.Source, e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *IngestError) Unwrap() error { return e.Cause }

func newIngestError(source, code, message string, line int, cause error) *IngestError {
	return &IngestError{
		Source: source,
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   "ingest",
			Line:    line,
		},
		Cause: cause,
	}
}

// Batch is a parsed document, ready to be saved. Every record carries Source.
type Batch struct {
	Source      string
	Proxies     []model.Proxy
	Groups      []model.Group
	Rules       []model.Rule
	ConfigItems []model.ConfigItem

	// Skipped counts entries dropped during normalization: share-links that
	// failed to decode, non-mapping proxy/group entries, non-string rules.
	Skipped int
}

// Parse normalizes doc without touching storage.
//
// A document whose YAML root is a string is treated as a share-link list
// (plain or base64) and becomes {proxies: [...]}. The original text is
// handed to the extractor, not the YAML scalar, because a multi-line plain
// scalar folds its newlines into spaces. Text that is not valid YAML is
// given the same treatment when no line of it looks like a mapping key and
// at least one link decodes from it; otherwise it is a YAML parse error.
func Parse(doc string, source string) (*Batch, error) {
	b := &Batch{Source: source}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(doc), &root); err != nil {
		if !hasMappingLine(doc) {
			if res := link.Extract(doc); len(res.Proxies) > 0 {
				b.addLinks(res)
				return b, nil
			}
		}
		return nil, newIngestError(source, "YAML_PARSE_ERROR", "上游文档 YAML 解析失败", yamlErrorLine(err), err)
	}

	if len(root.Content) == 0 {
		return nil, newIngestError(source, "INVALID_DOCUMENT", "上游文档为空", 0, nil)
	}
	top := root.Content[0]
	switch {
	case top.Kind == yaml.ScalarNode && top.Tag == "!!str":
		b.addLinks(link.Extract(doc))
		return b, nil
	case top.Kind == yaml.MappingNode:
	default:
		return nil, newIngestError(source, "INVALID_DOCUMENT", "上游文档顶层必须是映射或链接列表", top.Line, nil)
	}

	decoded, err := model.DecodeNode(top)
	if err != nil {
		return nil, newIngestError(source, "YAML_PARSE_ERROR", "上游文档 YAML 解析失败", top.Line, err)
	}
	fields := decoded.(model.Fields)

	for _, kv := range fields {
		switch kv.Key {
		case keyProxies:
			items, err := listOf(kv.Value)
			if err != nil {
				return nil, newIngestError(source, "INVALID_DOCUMENT", "proxies 必须是列表", 0, err)
			}
			b.addProxies(items)
		case keyProxyGroups:
			items, err := listOf(kv.Value)
			if err != nil {
				return nil, newIngestError(source, "INVALID_DOCUMENT", "proxy-groups 必须是列表", 0, err)
			}
			b.addGroups(items)
		case keyRules:
			items, err := listOf(kv.Value)
			if err != nil {
				return nil, newIngestError(source, "INVALID_DOCUMENT", "rules 必须是列表", 0, err)
			}
			b.addRules(items)
		default:
			b.ConfigItems = append(b.ConfigItems, model.ConfigItem{Key: kv.Key, Value: kv.Value, Source: source})
		}
	}
	return b, nil
}

// mappingLine matches "key:" or "- key:" followed by a space or line end.
// A share-link ("ss://...") never matches because "//" follows its colon.
var mappingLine = regexp.MustCompile(`^\s*(-\s+)?[A-Za-z0-9_.-]+:(\s|$)`)

func hasMappingLine(doc string) bool {
	for _, line := range strings.Split(doc, "\n") {
		if mappingLine.MatchString(line) {
			return true
		}
	}
	return false
}

var yamlLine = regexp.MustCompile(`line (\d+):`)

// yamlErrorLine pulls the first "line N:" out of a yaml.v3 error, 0 if none.
func yamlErrorLine(err error) int {
	m := yamlLine.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// listOf accepts a sequence or an empty value.
func listOf(v any) ([]any, error) {
	switch l := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return l, nil
	default:
		return nil, fmt.Errorf("got %T", v)
	}
}

func (b *Batch) addLinks(res link.Result) {
	b.Skipped += res.Skipped
	for _, p := range res.Proxies {
		p.Source = b.Source
		b.Proxies = append(b.Proxies, p)
	}
}

// addProxies keeps each entry verbatim as the proxy config. A missing or
// empty name/type is filled with the default and put in front.
func (b *Batch) addProxies(items []any) {
	for _, item := range items {
		entry, ok := item.(model.Fields)
		if !ok {
			b.Skipped++
			continue
		}
		cfg := entry.Clone()
		cfg = withDefault(cfg, "type", defaultProxyType)
		cfg = withDefault(cfg, "name", defaultProxyName)

		p := model.NewProxy(cfg)
		p.Source = b.Source
		b.Proxies = append(b.Proxies, p)
	}
}

func (b *Batch) addGroups(items []any) {
	for i, item := range items {
		entry, ok := item.(model.Fields)
		if !ok {
			b.Skipped++
			continue
		}
		g := model.Group{
			Name:     defaultGroupName,
			Type:     defaultGroupType,
			Proxies:  []string{},
			Config:   model.Fields{},
			Source:   b.Source,
			Priority: i,
		}
		for _, kv := range entry {
			switch kv.Key {
			case "name":
				if s := scalarText(kv.Value); s != "" {
					g.Name = s
				}
			case "type":
				if s := scalarText(kv.Value); s != "" {
					g.Type = s
				}
			case "proxies":
				members, _ := kv.Value.([]any)
				for _, m := range members {
					if s := scalarText(m); s != "" {
						g.Proxies = append(g.Proxies, s)
					}
				}
			default:
				g.Config = append(g.Config, kv)
			}
		}
		b.Groups = append(b.Groups, g)
	}
}

func (b *Batch) addRules(items []any) {
	for i, item := range items {
		text, ok := item.(string)
		if !ok || strings.TrimSpace(text) == "" {
			b.Skipped++
			continue
		}
		b.Rules = append(b.Rules, model.Rule{Text: text, Priority: i, Source: b.Source})
	}
}

func withDefault(cfg model.Fields, key, def string) model.Fields {
	if v, ok := cfg.Get(key); ok && scalarText(v) != "" {
		return cfg
	}
	cfg = cfg.Delete(key)
	return append(model.Fields{{Key: key, Value: def}}, cfg...)
}

// scalarText renders a YAML scalar as text; collections yield "".
func scalarText(v any) string {
	switch s := v.(type) {
	case nil, model.Fields, []any:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
