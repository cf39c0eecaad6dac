// Package rules handles the raw rule text a subscription carries.
package rules

import (
	"fmt"
	"net"
	"strings"
)

type RuleError struct {
	Code    string
	Message string
	Hint    string
	Cause   error
}

func (e *RuleError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *RuleError) Unwrap() error { return e.Cause }

// CleanCustomRules splits multi-line rule text into rule lines. Blank lines
// and "#" comments are dropped; every other line is kept as written, minus
// surrounding whitespace.
func CleanCustomRules(text string) []string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, raw := range lines {
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// Check reports whether line looks like a Clash classical rule
// (TYPE,VALUE,POLICY[,OPTION] or MATCH,POLICY). Policies are not resolved.
func Check(line string) error {
	parts := strings.Split(line, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if parts[0] == "" {
		return &RuleError{Code: "RULE_PARSE_ERROR", Message: "规则类型不能为空"}
	}

	typ := strings.ToUpper(parts[0])
	switch typ {
	case "MATCH", "FINAL":
		if len(parts) != 2 || parts[1] == "" {
			return &RuleError{
				Code:    "RULE_PARSE_ERROR",
				Message: "MATCH 规则必须是 MATCH,<POLICY>",
			}
		}
		return nil
	case "IP-CIDR", "IP-CIDR6", "SRC-IP-CIDR":
		if err := checkFields(parts); err != nil {
			return err
		}
		if _, _, err := net.ParseCIDR(parts[1]); err != nil {
			return &RuleError{
				Code:    "RULE_PARSE_ERROR",
				Message: typ + " 的 CIDR 不合法",
				Hint:    "expected: e.g. 1.2.3.4/32",
				Cause:   err,
			}
		}
		return nil
	case "DOMAIN", "DOMAIN-SUFFIX", "DOMAIN-KEYWORD", "DOMAIN-REGEX", "GEOSITE", "GEOIP",
		"IP-ASN", "DST-PORT", "SRC-PORT", "IN-PORT", "NETWORK",
		"PROCESS-NAME", "PROCESS-PATH", "RULE-SET", "USER-AGENT", "URL-REGEX":
		return checkFields(parts)
	default:
		return &RuleError{
			Code:    "UNSUPPORTED_RULE_TYPE",
			Message: fmt.Sprintf("不支持的规则类型：%s", typ),
		}
	}
}

func checkFields(parts []string) error {
	if len(parts) < 3 || len(parts) > 4 {
		return &RuleError{
			Code:    "RULE_PARSE_ERROR",
			Message: "规则字段数量不合法",
			Hint:    "expected: TYPE,VALUE,POLICY[,no-resolve]",
		}
	}
	if parts[1] == "" || parts[2] == "" {
		return &RuleError{Code: "RULE_PARSE_ERROR", Message: "规则 VALUE/POLICY 不能为空"}
	}
	if len(parts) == 4 && !strings.EqualFold(parts[3], "no-resolve") && !strings.EqualFold(parts[3], "src") {
		return &RuleError{
			Code:    "RULE_PARSE_ERROR",
			Message: "规则可选项仅支持 no-resolve",
			Hint:    "expected: TYPE,VALUE,POLICY[,no-resolve]",
		}
	}
	return nil
}
