package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/John-Robertt/subhub/internal/model"
	"gopkg.in/yaml.v3"
)

type harness struct {
	t      *testing.T
	dir    string
	config string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := "storage:\n  driver: sqlite\n  dsn: " + filepath.Join(dir, "subhub.db") + "\nlog:\n  writer: []\n"
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return &harness{t: t, dir: dir, config: path}
}

func (h *harness) file(name, content string) string {
	h.t.Helper()
	p := filepath.Join(h.dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		h.t.Fatal(err)
	}
	return p
}

func (h *harness) run(stdin string, args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	all := append([]string{"-config", h.config}, args...)
	code := run(context.Background(), all, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (h *harness) mustRun(stdin string, args ...string) string {
	h.t.Helper()
	code, out, errOut := h.run(stdin, args...)
	if code != 0 {
		h.t.Fatalf("%v: exit=%d stderr=%s", args, code, errOut)
	}
	return out
}

const upstreamA = `
mixed-port: 7890
proxies:
  - {name: a1, type: ss, server: 1.1.1.1, port: 8388, cipher: aes-256-gcm, password: p}
proxy-groups:
  - {name: PA, type: select, proxies: [a1]}
rules:
  - GEOIP,CN,DIRECT
`

func TestRun_IngestComposeRefresh(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("", "ingest", "-source", "A", "-file", h.file("a.yaml", upstreamA))
	if !strings.Contains(out, "A: proxies=1 groups=1 rules=1 config_items=1") {
		t.Fatalf("ingest output=%q", out)
	}

	links := "trojan://pw@b.example.com:443#b1\nss://YWVzLTI1Ni1nY206cA==@2.2.2.2:8388#b2\n"
	out = h.mustRun(base64.StdEncoding.EncodeToString([]byte(links)), "ingest", "-source", "B", "-file", "-")
	if !strings.Contains(out, "B: proxies=2") {
		t.Fatalf("ingest B output=%q", out)
	}

	h.mustRun("", "customset", "-kind", "rule", "-id", "r1", "-file", h.file("r1.yaml", "- DOMAIN,y.com,PA\n- MATCH,PA\n"))

	target := filepath.Join(h.dir, "out.yaml")
	h.mustRun("", "compose", "-sources", "A", "-rule", "r1", "-custom-rules", h.file("mine.txt", "# me\nDOMAIN,x.com,DIRECT\n"), "-o", target)
	b, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	var doc model.Fields
	if err := yaml.Unmarshal(b, &doc); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, b)
	}
	if got := doc.Keys(); !reflect.DeepEqual(got, []string{"mixed-port", "proxies", "proxy-groups", "rules"}) {
		t.Fatalf("keys=%v", got)
	}
	rules, _ := doc.Get("rules")
	if want := []any{"DOMAIN,x.com,DIRECT", "DOMAIN,y.com,PA", "MATCH,PA"}; !reflect.DeepEqual(rules, want) {
		t.Fatalf("rules=%v, want=%v", rules, want)
	}

	list := h.mustRun("", "compose", "-target", "list")
	plain, err := base64.StdEncoding.DecodeString(list)
	if err != nil {
		t.Fatalf("list output is not base64: %v", err)
	}
	if n := len(strings.Split(string(plain), "\n")); n != 3 {
		t.Fatalf("links=%d, want=3:\n%s", n, plain)
	}

	h.mustRun("", "refresh", "-source", "A", "-file", h.file("a2.yaml", "proxies:\n  - {name: a9, type: ss, server: 9.9.9.9, port: 1, cipher: aes-256-gcm, password: p}\n"))
	h.mustRun("", "compose", "-sources", "A", "-o", target)
	b, _ = os.ReadFile(target)
	if strings.Contains(string(b), "a1") || !strings.Contains(string(b), "a9") {
		t.Fatalf("refresh did not replace source A:\n%s", b)
	}
	if strings.Contains(string(b), "GEOIP,CN,DIRECT") {
		t.Fatalf("stale rules after refresh:\n%s", b)
	}
}

func TestRun_ExitCodes(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		args []string
		code int
	}{
		{nil, 2},
		{[]string{"bogus"}, 2},
		{[]string{"ingest", "-file", "x.yaml"}, 2},
		{[]string{"ingest", "-source", "A"}, 2},
		{[]string{"ingest", "-source", "A", "-file", "a", "-url", "http://x"}, 2},
		{[]string{"ingest", "-source", "A", "-file", filepath.Join(h.dir, "missing.yaml")}, 1},
		{[]string{"compose", "-target", "quanx"}, 1},
		{[]string{"compose", "-token", "nope"}, 1},
		{[]string{"customset", "-kind", "group", "-id", "default", "-file", "x"}, 2},
		{[]string{"-driver", "postgres", "compose"}, 2},
	}
	for _, tc := range cases {
		if code, _, errOut := h.run("", tc.args...); code != tc.code {
			t.Fatalf("%v: exit=%d, want=%d (stderr=%s)", tc.args, code, tc.code, errOut)
		}
	}

	code, _, errOut := h.run("", "ingest", "-source", "A", "-file", h.file("bad.yaml", "proxies: [\n"))
	if code != 1 || !strings.Contains(errOut, "YAML_PARSE_ERROR") {
		t.Fatalf("exit=%d stderr=%q, want YAML_PARSE_ERROR", code, errOut)
	}
}
