package rules

import (
	"errors"
	"reflect"
	"testing"
)

func TestCleanCustomRules(t *testing.T) {
	text := "# my rules\r\n\r\n  DOMAIN,x.com,DIRECT  \n\n#DOMAIN,off.com,REJECT\nGEOIP,CN,DIRECT\r\n   \n"
	got := CleanCustomRules(text)
	want := []string{"DOMAIN,x.com,DIRECT", "GEOIP,CN,DIRECT"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("rules=%q, want=%q", got, want)
	}
	if got := CleanCustomRules(""); len(got) != 0 {
		t.Fatalf("rules=%q, want empty", got)
	}
}

func TestCheck(t *testing.T) {
	ok := []string{
		"DOMAIN,example.com,DIRECT",
		"domain-suffix,google.com,Proxy",
		"IP-CIDR,1.1.1.1/32,DIRECT,no-resolve",
		"IP-CIDR6,2001:db8::/32,REJECT",
		"MATCH,DIRECT",
		"RULE-SET,private,DIRECT",
	}
	for _, line := range ok {
		if err := Check(line); err != nil {
			t.Fatalf("Check(%q)=%v, want nil", line, err)
		}
	}

	bad := map[string]string{
		"DOMAIN,example.com":              "RULE_PARSE_ERROR",
		"IP-CIDR,1.1.1.1,DIRECT":          "RULE_PARSE_ERROR",
		"IP-CIDR,1.1.1.1/32,DIRECT,later": "RULE_PARSE_ERROR",
		"MATCH":                           "RULE_PARSE_ERROR",
		",x,DIRECT":                       "RULE_PARSE_ERROR",
		"WHATEVER,x,DIRECT":               "UNSUPPORTED_RULE_TYPE",
	}
	for line, code := range bad {
		err := Check(line)
		var re *RuleError
		if !errors.As(err, &re) {
			t.Fatalf("Check(%q): expected *RuleError, got %T: %v", line, err, err)
		}
		if re.Code != code {
			t.Fatalf("Check(%q) code=%q, want=%q", line, re.Code, code)
		}
	}
}

func FuzzCleanCustomRules(f *testing.F) {
	for _, s := range []string{"", "\n", "# c\nMATCH,DIRECT", "DOMAIN,a.com,DIRECT\r\n\r\nGEOIP,CN,DIRECT"} {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, text string) {
		for _, line := range CleanCustomRules(text) {
			if line == "" || line[0] == '#' {
				t.Fatalf("kept blank or comment line %q", line)
			}
			_ = Check(line)
		}
	})
}
