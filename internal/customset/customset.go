// Package customset parses admin-authored group and rule sets.
//
// A group set is a YAML list of proxy-group mappings, a rule set a YAML list
// of rule strings. Both override what the selected sources provide.
package customset

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/John-Robertt/subhub/internal/model"
	"github.com/John-Robertt/subhub/internal/rules"
	"gopkg.in/yaml.v3"
)

type ParseError struct {
	AppError model.AppError
	Cause    error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

func newParseError(code, message string, line int, content string, cause error) *ParseError {
	return &ParseError{
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   "parse_customset",
			Line:    line,
			Snippet: truncateSnippet(content, 200),
		},
		Cause: cause,
	}
}

// ParseGroupSet returns the group list as decoded, entries untouched and in
// order. Mappings come back as model.Fields. Empty content is an empty list.
func ParseGroupSet(content string) ([]any, error) {
	root, err := decodeSingle(content)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return []any{}, nil
	}
	if root.Kind != yaml.SequenceNode {
		return nil, newParseError("CUSTOMSET_VALIDATE_ERROR", "自定义策略组必须是 YAML 列表", root.Line, content, nil)
	}
	v, err := model.DecodeNode(root)
	if err != nil {
		return nil, newParseError("CUSTOMSET_PARSE_ERROR", "自定义策略组 YAML 解析失败", root.Line, content, err)
	}
	return v.([]any), nil
}

// ParseRuleSet returns the rule lines of a rule set. Scalar entries are
// rendered as text; nested lists and mappings are dropped.
//
// Content that is a plain block of lines rather than a YAML list is read
// line by line, with "#" comments and blank lines removed.
func ParseRuleSet(content string) ([]string, error) {
	root, err := decodeSingle(content)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return []string{}, nil
	}
	switch {
	case root.Kind == yaml.ScalarNode && root.Tag == "!!str":
		return rules.CleanCustomRules(content), nil
	case root.Kind != yaml.SequenceNode:
		return nil, newParseError("CUSTOMSET_VALIDATE_ERROR", "自定义规则集必须是 YAML 列表", root.Line, content, nil)
	}

	out := make([]string, 0, len(root.Content))
	for _, item := range root.Content {
		if item.Kind != yaml.ScalarNode || item.Tag == "!!null" {
			continue
		}
		if s := strings.TrimSpace(item.Value); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// decodeSingle parses exactly one YAML document and returns its root node,
// or nil when content holds no document.
func decodeSingle(content string) (*yaml.Node, error) {
	dec := yaml.NewDecoder(strings.NewReader(content))
	var doc yaml.Node
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, newParseError("CUSTOMSET_PARSE_ERROR", "自定义集合 YAML 解析失败", 0, content, err)
	}

	// Reject multi-document YAML to keep behavior deterministic.
	var extra yaml.Node
	if err := dec.Decode(&extra); err == nil {
		return nil, newParseError("CUSTOMSET_PARSE_ERROR", "不允许多个 YAML 文档", 0, content, nil)
	} else if !errors.Is(err, io.EOF) {
		return nil, newParseError("CUSTOMSET_PARSE_ERROR", "自定义集合 YAML 解析失败", 0, content, err)
	}

	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return nil, nil
	}
	if root.Kind == yaml.AliasNode {
		root = root.Alias
	}
	return root, nil
}

func truncateSnippet(s string, max int) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max]
}
