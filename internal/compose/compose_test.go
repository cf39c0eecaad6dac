package compose

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/John-Robertt/subhub/internal/ingest"
	"github.com/John-Robertt/subhub/internal/logger"
	"github.com/John-Robertt/subhub/internal/model"
	"github.com/John-Robertt/subhub/internal/storage"
	"github.com/John-Robertt/subhub/internal/storage/db"
	"github.com/John-Robertt/subhub/internal/storage/repo"
)

const docA = `
port: 7890
dns:
  enable: true
proxies:
  - {name: a1, type: ss, server: 1.1.1.1, port: 8388, cipher: aes-256-gcm, password: p, x-extra: keep}
  - {name: a2, type: trojan, server: a.example.com, port: 443, password: p}
proxy-groups:
  - {name: PA, type: select, proxies: [a1, a2, PB]}
rules:
  - GEOIP,CN,DIRECT
`

const docB = `
port: 7891
tun:
  enable: true
proxies:
  - {name: b1, type: ss, server: 2.2.2.2, port: 8388, cipher: aes-256-gcm, password: p}
proxy-groups:
  - {name: PB, type: url-test, proxies: [b1], url: "http://www.gstatic.com/generate_204", interval: 300}
rules:
  - DOMAIN-SUFFIX,b.com,PB
  - MATCH,PB
`

func setup(t *testing.T) (*repo.Repository, *bytes.Buffer, *Composer) {
	t.Helper()
	gdb, err := db.New(db.Options{DSN: filepath.Join(t.TempDir(), "compose.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	r := repo.New(gdb)
	if err := r.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ing := ingest.New(r, nil)
	for _, step := range []struct{ source, doc string }{{"A", docA}, {"B", docB}} {
		if _, err := ing.Ingest(context.Background(), step.doc, step.source); err != nil {
			t.Fatalf("ingest %s: %v", step.source, err)
		}
	}

	var buf bytes.Buffer
	return r, &buf, New(r, logger.NewWithWriter(&buf, "debug"))
}

func proxyNames(t *testing.T, doc model.Fields) []string {
	t.Helper()
	v, _ := doc.Get("proxies")
	var out []string
	for _, p := range v.([]any) {
		out = append(out, p.(model.Fields).GetString("name"))
	}
	return out
}

func groupNames(t *testing.T, doc model.Fields) []string {
	t.Helper()
	v, _ := doc.Get("proxy-groups")
	var out []string
	for _, g := range v.([]any) {
		out = append(out, g.(model.Fields).GetString("name"))
	}
	return out
}

func ruleTexts(t *testing.T, doc model.Fields) []string {
	t.Helper()
	v, _ := doc.Get("rules")
	var out []string
	for _, r := range v.([]any) {
		out = append(out, r.(string))
	}
	return out
}

func TestCompose_CustomRulesFirst(t *testing.T) {
	_, _, c := setup(t)

	doc, err := c.Compose(context.Background(), model.Subscription{
		Token:           "t",
		SelectedSources: []string{"A"},
		RuleID:          model.DefaultSetID,
		CustomRules:     "DOMAIN,x.com,DIRECT",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"DOMAIN,x.com,DIRECT", "GEOIP,CN,DIRECT"}
	if got := ruleTexts(t, doc); !reflect.DeepEqual(got, want) {
		t.Fatalf("rules=%q, want=%q", got, want)
	}
}

func TestCompose_AllSources(t *testing.T) {
	_, _, c := setup(t)

	doc, err := c.Compose(context.Background(), model.Subscription{Token: "t"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := doc.Keys(); !reflect.DeepEqual(got, []string{"port", "dns", "tun", "proxies", "proxy-groups", "rules"}) {
		t.Fatalf("keys=%v", got)
	}
	if v, _ := doc.Get("port"); v != 7891 {
		t.Fatalf("port=%v, want=7891 (last write wins)", v)
	}
	if got := proxyNames(t, doc); !reflect.DeepEqual(got, []string{"a1", "a2", "b1"}) {
		t.Fatalf("proxies=%v", got)
	}
	if got := groupNames(t, doc); !reflect.DeepEqual(got, []string{"PA", "PB"}) {
		t.Fatalf("groups=%v", got)
	}
	want := []string{"GEOIP,CN,DIRECT", "DOMAIN-SUFFIX,b.com,PB", "MATCH,PB"}
	if got := ruleTexts(t, doc); !reflect.DeepEqual(got, want) {
		t.Fatalf("rules=%q, want=%q", got, want)
	}

	v, _ := doc.Get("proxies")
	a1 := v.([]any)[0].(model.Fields)
	if a1.GetString("x-extra") != "keep" {
		t.Fatalf("unknown key lost: %v", a1)
	}
	g, _ := doc.Get("proxy-groups")
	pb := g.([]any)[1].(model.Fields)
	if keys := pb.Keys(); !reflect.DeepEqual(keys, []string{"name", "type", "proxies", "url", "interval"}) {
		t.Fatalf("group keys=%v", keys)
	}
}

func TestCompose_InterleavedIngestsStayGrouped(t *testing.T) {
	r, _, c := setup(t)

	more := "proxies:\n  - {name: a3, type: ss, server: 3.3.3.3, port: 8388, cipher: aes-256-gcm, password: p}\nrules:\n  - DOMAIN,a3.com,a3\n"
	if _, err := ingest.New(r, nil).Ingest(context.Background(), more, "A"); err != nil {
		t.Fatalf("ingest A again: %v", err)
	}

	doc, err := c.Compose(context.Background(), model.Subscription{Token: "t"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := proxyNames(t, doc); !reflect.DeepEqual(got, []string{"a1", "a2", "a3", "b1"}) {
		t.Fatalf("proxies=%v", got)
	}
	rules := ruleTexts(t, doc)
	if len(rules) != 4 || rules[2] != "DOMAIN-SUFFIX,b.com,PB" || rules[3] != "MATCH,PB" {
		t.Fatalf("rules=%q, want both A rules before B", rules)
	}
}

func TestCompose_SourceFiltering(t *testing.T) {
	_, _, c := setup(t)

	doc, err := c.Compose(context.Background(), model.Subscription{Token: "t", SelectedSources: []string{"B", "B", ""}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := proxyNames(t, doc); !reflect.DeepEqual(got, []string{"b1"}) {
		t.Fatalf("proxies=%v", got)
	}
	if got := groupNames(t, doc); !reflect.DeepEqual(got, []string{"PB"}) {
		t.Fatalf("groups=%v", got)
	}
	if got := ruleTexts(t, doc); len(got) != 2 {
		t.Fatalf("rules=%q", got)
	}
	// Misc keys are not filtered.
	if !doc.Has("dns") || !doc.Has("tun") {
		t.Fatalf("misc keys filtered: %v", doc.Keys())
	}

	doc, err = c.Compose(context.Background(), model.Subscription{Token: "t", SelectedSources: []string{"nobody"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := proxyNames(t, doc); len(got) != 0 {
		t.Fatalf("proxies=%v, want none", got)
	}
}

func TestCompose_CustomSets(t *testing.T) {
	r, _, c := setup(t)
	ctx := context.Background()

	must(t, r.SaveCustomGroupSet(ctx, model.CustomSet{ID: "g1", Content: "- name: Global\n  type: select\n  proxies: [a1, b1, Missing]\n"}))
	must(t, r.SaveCustomRuleSet(ctx, model.CustomSet{ID: "r1", Content: "- DOMAIN,y.com,Global\n- MATCH,Global\n"}))

	doc, err := c.Compose(ctx, model.Subscription{
		Token:           "t",
		SelectedSources: []string{"A"},
		GroupID:         "g1",
		RuleID:          "r1",
		CustomRules:     "# mine\nDOMAIN,x.com,DIRECT\n",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := groupNames(t, doc); !reflect.DeepEqual(got, []string{"Global"}) {
		t.Fatalf("groups=%v", got)
	}
	want := []string{"DOMAIN,x.com,DIRECT", "DOMAIN,y.com,Global", "MATCH,Global"}
	if got := ruleTexts(t, doc); !reflect.DeepEqual(got, want) {
		t.Fatalf("rules=%q, want=%q", got, want)
	}
	// Custom sets do not change which proxies are emitted.
	if got := proxyNames(t, doc); !reflect.DeepEqual(got, []string{"a1", "a2"}) {
		t.Fatalf("proxies=%v", got)
	}
}

func TestCompose_MissingOrBrokenCustomSet(t *testing.T) {
	r, logs, c := setup(t)
	ctx := context.Background()

	must(t, r.SaveCustomGroupSet(ctx, model.CustomSet{ID: "broken", Content: "name: [\n"}))

	for _, groupID := range []string{"missing", "broken"} {
		doc, err := c.Compose(ctx, model.Subscription{
			Token:           "t",
			SelectedSources: []string{"A"},
			GroupID:         groupID,
			RuleID:          "missing",
		})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", groupID, err)
		}
		if got := groupNames(t, doc); !reflect.DeepEqual(got, []string{"PA"}) {
			t.Fatalf("%s: groups=%v, want source groups", groupID, got)
		}
		if got := ruleTexts(t, doc); !reflect.DeepEqual(got, []string{"GEOIP,CN,DIRECT"}) {
			t.Fatalf("%s: rules=%q, want source rules", groupID, got)
		}
	}
	for _, msg := range []string{"custom group set not found", "custom group set unparseable", "custom rule set not found"} {
		if !strings.Contains(logs.String(), msg) {
			t.Fatalf("log missing %q:\n%s", msg, logs.String())
		}
	}
}

func TestComposeToken(t *testing.T) {
	r, _, c := setup(t)
	ctx := context.Background()

	must(t, r.SaveSubscription(ctx, model.Subscription{Token: "on", SelectedSources: []string{"B"}, Enabled: true}))
	must(t, r.SaveSubscription(ctx, model.Subscription{Token: "off", Enabled: false}))

	doc, err := c.ComposeToken(ctx, "on")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := proxyNames(t, doc); !reflect.DeepEqual(got, []string{"b1"}) {
		t.Fatalf("proxies=%v", got)
	}

	if _, err := c.ComposeToken(ctx, "off"); !errors.Is(err, ErrSubscriptionDisabled) {
		t.Fatalf("err=%v, want ErrSubscriptionDisabled", err)
	}
	_, err = c.ComposeToken(ctx, "nope")
	if !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("err=%v, want ErrSubscriptionNotFound", err)
	}
	var ce *ComposeError
	if !errors.As(err, &ce) || ce.AppError.Stage != "compose" {
		t.Fatalf("err=%v, want *ComposeError", err)
	}
}

type failingStore struct {
	storage.Store
}

func (failingStore) GetRules(context.Context, ...string) ([]model.Rule, error) {
	return nil, errors.New("db gone")
}

func TestCompose_StoreError(t *testing.T) {
	r, _, _ := setup(t)
	c := New(failingStore{r}, nil)

	_, err := c.Compose(context.Background(), model.Subscription{Token: "t"})
	var ce *ComposeError
	if !errors.As(err, &ce) || ce.AppError.Code != "STORE_ERROR" {
		t.Fatalf("err=%v, want STORE_ERROR", err)
	}

	if _, err := c.ComposeToken(context.Background(), "t"); !errors.As(err, &ce) || ce.AppError.Code != "STORE_ERROR" {
		t.Fatalf("err=%v, want STORE_ERROR for a store without subscription lookup", err)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
