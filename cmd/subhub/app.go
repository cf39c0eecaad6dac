package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/John-Robertt/subhub/internal/compose"
	"github.com/John-Robertt/subhub/internal/config"
	"github.com/John-Robertt/subhub/internal/customset"
	"github.com/John-Robertt/subhub/internal/fetch"
	"github.com/John-Robertt/subhub/internal/ingest"
	"github.com/John-Robertt/subhub/internal/logger"
	"github.com/John-Robertt/subhub/internal/model"
	"github.com/John-Robertt/subhub/internal/render"
	"github.com/John-Robertt/subhub/internal/storage/db"
	"github.com/John-Robertt/subhub/internal/storage/repo"
	"gorm.io/gorm"
)

type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

type app struct {
	gdb       *gorm.DB
	repo      *repo.Repository
	ingestor  *ingest.Ingestor
	refresher *ingest.Refresher
	composer  *compose.Composer
	fetchOpt  fetch.Options
	log       logger.Logger

	stdin  io.Reader
	stdout io.Writer
}

func newApp(cfg *config.Config, log logger.Logger, stdin io.Reader, stdout io.Writer) (*app, error) {
	gdb, err := db.New(db.Options{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
		Prefix: cfg.Storage.Prefix,
		Logger: db.NewLogger(log),
	})
	if err != nil {
		return nil, err
	}
	r := repo.New(gdb)
	if err := r.Migrate(); err != nil {
		closeDB(gdb)
		return nil, err
	}
	ing := ingest.New(r, log)
	return &app{
		gdb:       gdb,
		repo:      r,
		ingestor:  ing,
		refresher: ingest.NewRefresher(ing),
		composer:  compose.New(r, log),
		fetchOpt:  fetch.OptionsFrom(cfg.Fetch),
		log:       log,
		stdin:     stdin,
		stdout:    stdout,
	}, nil
}

func (a *app) close() { closeDB(a.gdb) }

func closeDB(gdb *gorm.DB) {
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return &usageError{msg: fmt.Sprintf("%s: %v", fs.Name(), err)}
	}
	if fs.NArg() > 0 {
		return &usageError{msg: fmt.Sprintf("%s: 多余的参数：%s", fs.Name(), strings.Join(fs.Args(), " "))}
	}
	return nil
}

// input reads -file (path, or "-" for stdin) or fetches -url. Exactly one
// must be set.
func (a *app) input(ctx context.Context, kind fetch.Kind, file, rawURL string) (string, error) {
	switch {
	case file != "" && rawURL != "":
		return "", &usageError{msg: "-file 与 -url 只能指定一个"}
	case rawURL != "":
		return fetch.FetchTextWithOptions(ctx, kind, rawURL, a.fetchOpt)
	case file == "-":
		b, err := io.ReadAll(a.stdin)
		return string(b), err
	case file != "":
		b, err := os.ReadFile(file)
		return string(b), err
	default:
		return "", &usageError{msg: "需要 -file 或 -url"}
	}
}

func (a *app) ingest(ctx context.Context, args []string, replace bool) error {
	name := "ingest"
	if replace {
		name = "refresh"
	}
	fs := newFlagSet(name)
	source := fs.String("source", "", "来源名称")
	file := fs.String("file", "", "上游文档文件（- 表示标准输入）")
	rawURL := fs.String("url", "", "上游文档 URL")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(*source) == "" {
		return &usageError{msg: name + ": 需要 -source"}
	}

	doc, err := a.input(ctx, fetch.KindUpstream, *file, *rawURL)
	if err != nil {
		return err
	}

	var sum ingest.Summary
	if replace {
		sum, err = a.refresher.Refresh(ctx, *source, doc)
	} else {
		sum, err = a.ingestor.Ingest(ctx, doc, *source)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s: proxies=%d groups=%d rules=%d config_items=%d skipped=%d\n",
		sum.Source, sum.Proxies, sum.Groups, sum.Rules, sum.ConfigItems, sum.Skipped)
	return nil
}

func (a *app) compose(ctx context.Context, args []string) error {
	fs := newFlagSet("compose")
	token := fs.String("token", "", "订阅 token，设置后忽略 -sources/-group/-rule/-custom-rules")
	sources := fs.String("sources", "", "逗号分隔的来源名称，为空表示全部")
	groupID := fs.String("group", model.DefaultSetID, "自定义策略组 ID")
	ruleID := fs.String("rule", model.DefaultSetID, "自定义规则集 ID")
	customRules := fs.String("custom-rules", "", "自定义规则文件")
	target := fs.String("target", string(render.TargetClash), "输出格式（clash|list）")
	out := fs.String("o", "", "输出文件，为空则写到标准输出")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	tgt, err := render.ParseTarget(*target)
	if err != nil {
		return err
	}

	var doc model.Fields
	if *token != "" {
		doc, err = a.composer.ComposeToken(ctx, *token)
	} else {
		sub := model.Subscription{
			SelectedSources: splitList(*sources),
			GroupID:         *groupID,
			RuleID:          *ruleID,
			Enabled:         true,
		}
		if *customRules != "" {
			b, rerr := os.ReadFile(*customRules)
			if rerr != nil {
				return rerr
			}
			sub.CustomRules = string(b)
		}
		doc, err = a.composer.Compose(ctx, sub)
	}
	if err != nil {
		return err
	}

	if tgt == render.TargetList {
		if _, skipped := render.ListLinks(doc); skipped > 0 {
			a.log.Warn("proxies without a share-link form left out of the list", "skipped", skipped)
		}
	}
	b, err := render.Render(tgt, doc)
	if err != nil {
		return err
	}
	if *out == "" {
		_, err = a.stdout.Write(b)
		return err
	}
	return os.WriteFile(*out, b, 0o644)
}

func (a *app) customSet(ctx context.Context, args []string) error {
	fs := newFlagSet("customset")
	kind := fs.String("kind", "", "group 或 rule")
	id := fs.String("id", "", "集合 ID")
	name := fs.String("name", "", "显示名称")
	file := fs.String("file", "", "集合内容文件（- 表示标准输入）")
	rawURL := fs.String("url", "", "集合内容 URL")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(*id) == "" || *id == model.DefaultSetID {
		return &usageError{msg: "customset: 需要 -id，且不能是 " + model.DefaultSetID}
	}

	content, err := a.input(ctx, fetch.KindCustomSet, *file, *rawURL)
	if err != nil {
		return err
	}
	set := model.CustomSet{ID: *id, Name: *name, Content: content}

	switch *kind {
	case "group":
		groups, err := customset.ParseGroupSet(content)
		if err != nil {
			return err
		}
		if err := a.repo.SaveCustomGroupSet(ctx, set); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "group set %s: groups=%d\n", set.ID, len(groups))
	case "rule":
		lines, err := customset.ParseRuleSet(content)
		if err != nil {
			return err
		}
		if err := a.repo.SaveCustomRuleSet(ctx, set); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "rule set %s: rules=%d\n", set.ID, len(lines))
	default:
		return &usageError{msg: "customset: -kind 必须是 group 或 rule"}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
