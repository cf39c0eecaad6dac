package ingest

import (
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/John-Robertt/subhub/internal/model"
)

const clashDoc = `
port: 7890
dns:
  enable: true
  nameserver: [223.5.5.5, 119.29.29.29]
base: &base
  udp: true
proxies:
  - name: n1
    type: ss
    server: 1.2.3.4
    port: 8388
    cipher: aes-256-gcm
    password: p
    x-custom: {z: 1, a: 2}
  - type: vmess
    server: v.example.com
    port: 443
  - <<: *base
    name: merged
    type: trojan
    server: t.example.com
    port: 443
  - just a string
proxy-groups:
  - name: Proxy
    type: select
    proxies: [n1, merged, Auto]
  - name: Auto
    type: url-test
    url: http://www.gstatic.com/generate_204
    interval: 300
    proxies: [n1]
  - proxies: [DIRECT]
rules:
  - DOMAIN-SUFFIX,google.com,Proxy
  - 42
  - MATCH,DIRECT
tun:
  enable: false
`

func TestParse_ClashDocument(t *testing.T) {
	b, err := Parse(clashDoc, "src1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(b.Proxies) != 3 {
		t.Fatalf("proxies=%d, want=3", len(b.Proxies))
	}
	p := b.Proxies[0]
	if p.Name != "n1" || p.Type != "ss" || p.Server != "1.2.3.4" || p.Port != 8388 || p.Source != "src1" {
		t.Fatalf("proxy[0]=%+v", p)
	}
	wantKeys := []string{"name", "type", "server", "port", "cipher", "password", "x-custom"}
	if got := p.Config.Keys(); !reflect.DeepEqual(got, wantKeys) {
		t.Fatalf("keys=%v, want=%v", got, wantKeys)
	}
	custom, _ := p.Config.Get("x-custom")
	if got := custom.(model.Fields).Keys(); !reflect.DeepEqual(got, []string{"z", "a"}) {
		t.Fatalf("x-custom keys=%v, want=[z a]", got)
	}

	unnamed := b.Proxies[1]
	if unnamed.Name != "Unnamed" || unnamed.Config.GetString("name") != "Unnamed" {
		t.Fatalf("default name=%q/%q", unnamed.Name, unnamed.Config.GetString("name"))
	}
	if got := unnamed.Config.Keys()[0]; got != "name" {
		t.Fatalf("first key=%q, want=name", got)
	}

	merged := b.Proxies[2]
	if v, _ := merged.Config.Get("udp"); v != true {
		t.Fatalf("merge key not applied: %v", merged.Config)
	}

	if len(b.Groups) != 3 {
		t.Fatalf("groups=%d, want=3", len(b.Groups))
	}
	auto := b.Groups[1]
	if auto.Type != "url-test" || auto.Priority != 1 || !reflect.DeepEqual(auto.Proxies, []string{"n1"}) {
		t.Fatalf("auto=%+v", auto)
	}
	if got := auto.Config.Keys(); !reflect.DeepEqual(got, []string{"url", "interval"}) {
		t.Fatalf("auto config keys=%v", got)
	}
	if g := b.Groups[2]; g.Name != "Unnamed Group" || g.Type != "select" || g.Priority != 2 {
		t.Fatalf("default group=%+v", g)
	}

	if len(b.Rules) != 2 {
		t.Fatalf("rules=%d, want=2", len(b.Rules))
	}
	if b.Rules[1].Text != "MATCH,DIRECT" || b.Rules[1].Priority != 2 {
		t.Fatalf("rule[1]=%+v, want priority = index in source list", b.Rules[1])
	}

	var keys []string
	for _, it := range b.ConfigItems {
		keys = append(keys, it.Key)
	}
	if !reflect.DeepEqual(keys, []string{"port", "dns", "base", "tun"}) {
		t.Fatalf("config item keys=%v", keys)
	}

	// "just a string" proxy and the 42 rule.
	if b.Skipped != 2 {
		t.Fatalf("skipped=%d, want=2", b.Skipped)
	}
}

func TestParse_Base64LinkList(t *testing.T) {
	list := strings.Join([]string{
		"ss://YWVzLTI1Ni1nY206cA==@1.2.3.4:8388#n1",
		"ss://YWVzLTI1Ni1nY206cA==@1.2.3.5:8388#n2",
		"ss://broken-link",
	}, "\n")
	doc := base64.StdEncoding.EncodeToString([]byte(list))

	b, err := Parse(doc, "b64")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.Proxies) != 2 || b.Skipped != 1 {
		t.Fatalf("proxies/skipped=%d/%d, want=2/1", len(b.Proxies), b.Skipped)
	}
	if b.Proxies[1].Source != "b64" || b.Proxies[1].Name != "n2" {
		t.Fatalf("proxy[1]=%+v", b.Proxies[1])
	}
}

func TestParse_PlainLinkList(t *testing.T) {
	// A multi-line plain scalar would fold into one line if taken from YAML.
	doc := "trojan://pw@a.example.com:443#A\ntrojan://pw@b.example.com:443#B\n"
	b, err := Parse(doc, "plain")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.Proxies) != 2 {
		t.Fatalf("proxies=%d, want=2", len(b.Proxies))
	}

	// Not valid YAML (": " inside a plain scalar), still a link list.
	doc = "trojan://pw@a.example.com:443#HK: 01\ntrojan://pw@b.example.com:443#B\n"
	b, err = Parse(doc, "plain")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.Proxies) != 2 || b.Proxies[0].Name != "HK: 01" {
		t.Fatalf("proxies=%v", b.Proxies)
	}
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"":                  "INVALID_DOCUMENT",
		"- a\n- b\n":        "INVALID_DOCUMENT",
		"42":                "INVALID_DOCUMENT",
		"proxies: {a: 1}\n": "INVALID_DOCUMENT",
		"proxies: [\n":      "YAML_PARSE_ERROR",
		"a: b: c\n":         "YAML_PARSE_ERROR",
		"dns: &a [*a]\n":    "YAML_PARSE_ERROR",
		aliasBomb(7, 10):    "YAML_PARSE_ERROR",

		// Broken YAML with links in it is not taken as a link list.
		"proxies: [\ntrojan://pw@a.example.com:443#A\n": "YAML_PARSE_ERROR",
	}
	for doc, code := range cases {
		_, err := Parse(doc, "s")
		var ie *IngestError
		if !errors.As(err, &ie) {
			t.Fatalf("Parse(%q) err=%v, want *IngestError", doc, err)
		}
		if ie.AppError.Code != code || ie.Source != "s" || ie.AppError.Stage != "ingest" {
			t.Fatalf("Parse(%q) code/source/stage=%q/%q/%q, want=%q/s/ingest", doc, ie.AppError.Code, ie.Source, ie.AppError.Stage, code)
		}
	}
}

// aliasBomb nests levels anchors, each a list of width aliases of the
// previous one.
func aliasBomb(levels, width int) string {
	var b strings.Builder
	b.WriteString("l0: &l0 [x]\n")
	for i := 1; i <= levels; i++ {
		refs := make([]string, width)
		for j := range refs {
			refs[j] = fmt.Sprintf("*l%d", i-1)
		}
		fmt.Fprintf(&b, "l%d: &l%d [%s]\n", i, i, strings.Join(refs, ", "))
	}
	return b.String()
}

func TestParse_EmptySections(t *testing.T) {
	b, err := Parse("proxies:\nrules: []\nmode: rule\n", "s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.Proxies) != 0 || len(b.Rules) != 0 || len(b.ConfigItems) != 1 {
		t.Fatalf("batch=%+v", b)
	}
}
