// Package compose merges stored source records and a subscription's
// overrides into one client configuration document.
package compose

import (
	"context"
	"errors"
	"fmt"

	"github.com/John-Robertt/subhub/internal/customset"
	"github.com/John-Robertt/subhub/internal/logger"
	"github.com/John-Robertt/subhub/internal/model"
	"github.com/John-Robertt/subhub/internal/rules"
	"github.com/John-Robertt/subhub/internal/storage"
	"github.com/samber/lo"
)

const (
	keyProxies     = "proxies"
	keyProxyGroups = "proxy-groups"
	keyRules       = "rules"
)

var (
	ErrSubscriptionNotFound = errors.New("compose: subscription not found")
	ErrSubscriptionDisabled = errors.New("compose: subscription disabled")
)

type ComposeError struct {
	AppError model.AppError
	Cause    error
}

func (e *ComposeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *ComposeError) Unwrap() error { return e.Cause }

func newComposeError(code, message string, cause error) *ComposeError {
	return &ComposeError{
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   "compose",
		},
		Cause: cause,
	}
}

type Composer struct {
	store storage.Store
	log   logger.Logger
}

func New(store storage.Store, log logger.Logger) *Composer {
	if log == nil {
		log = logger.Nop()
	}
	return &Composer{store: store, log: log}
}

// ComposeToken looks the subscription up by token and composes it. The
// store must implement storage.SubscriptionReader.
func (c *Composer) ComposeToken(ctx context.Context, token string) (model.Fields, error) {
	reader, ok := c.store.(storage.SubscriptionReader)
	if !ok {
		return nil, newComposeError("STORE_ERROR", "存储不支持按 token 查询订阅", nil)
	}
	sub, err := reader.GetSubscription(ctx, token)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, newComposeError("SUBSCRIPTION_NOT_FOUND", "订阅不存在", ErrSubscriptionNotFound)
	case err != nil:
		return nil, newComposeError("STORE_ERROR", "读取订阅失败", err)
	case !sub.Enabled:
		return nil, newComposeError("SUBSCRIPTION_DISABLED", "订阅已停用", ErrSubscriptionDisabled)
	}
	return c.Compose(ctx, *sub)
}

// Compose builds {<misc keys>, proxies, proxy-groups, rules} for sub.
//
// Misc keys come from every source, whatever sub selects; when two sources
// set the same key the later one wins and the key keeps its first position.
// Proxies, groups and rules come from the selected sources only, unless a
// custom group or rule set replaces them. Custom rules always come first.
//
// Names referenced by groups and rules are not checked. Only store read
// failures are errors; a missing or broken custom set falls back to the
// source records.
func (c *Composer) Compose(ctx context.Context, sub model.Subscription) (model.Fields, error) {
	sources := lo.Uniq(lo.Compact(sub.SelectedSources))

	doc, err := c.misc(ctx)
	if err != nil {
		return nil, err
	}

	proxies, err := c.store.GetProxies(ctx, sources...)
	if err != nil {
		return nil, newComposeError("STORE_ERROR", "读取代理失败", err)
	}
	proxyDocs := lo.Map(proxies, func(p model.Proxy, _ int) any { return p.Config })

	groupDocs, err := c.groups(ctx, sub, sources)
	if err != nil {
		return nil, err
	}
	ruleLines, err := c.rules(ctx, sub, sources)
	if err != nil {
		return nil, err
	}

	doc = append(doc,
		model.Field{Key: keyProxies, Value: proxyDocs},
		model.Field{Key: keyProxyGroups, Value: groupDocs},
		model.Field{Key: keyRules, Value: lo.Map(ruleLines, func(r string, _ int) any { return r })},
	)

	c.log.Debug("subscription composed",
		"token", sub.Token,
		"sources", sources,
		"proxies", len(proxyDocs),
		"groups", len(groupDocs),
		"rules", len(ruleLines),
	)
	return doc, nil
}

func (c *Composer) misc(ctx context.Context) (model.Fields, error) {
	items, err := c.store.GetAllConfigItems(ctx)
	if err != nil {
		return nil, newComposeError("STORE_ERROR", "读取配置项失败", err)
	}
	out := make(model.Fields, 0, len(items)+3)
	for _, it := range items {
		switch it.Key {
		case keyProxies, keyProxyGroups, keyRules:
			continue
		}
		out = out.Set(it.Key, it.Value)
	}
	return out, nil
}

func (c *Composer) groups(ctx context.Context, sub model.Subscription, sources []string) ([]any, error) {
	if sub.UsesCustomGroups() {
		set, err := c.store.GetCustomGroupSet(ctx, sub.GroupID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			c.log.Warn("custom group set not found, using source groups", "token", sub.Token, "groupId", sub.GroupID)
		case err != nil:
			return nil, newComposeError("STORE_ERROR", "读取自定义策略组失败", err)
		default:
			groups, perr := customset.ParseGroupSet(set.Content)
			if perr == nil {
				return groups, nil
			}
			c.log.Err(perr, "custom group set unparseable, using source groups", "token", sub.Token, "groupId", sub.GroupID)
		}
	}

	groups, err := c.store.GetProxyGroups(ctx, sources...)
	if err != nil {
		return nil, newComposeError("STORE_ERROR", "读取代理组失败", err)
	}
	return lo.Map(groups, func(g model.Group, _ int) any { return g.Document() }), nil
}

func (c *Composer) rules(ctx context.Context, sub model.Subscription, sources []string) ([]string, error) {
	out := rules.CleanCustomRules(sub.CustomRules)
	for _, line := range out {
		if err := rules.Check(line); err != nil {
			c.log.Warn("custom rule looks malformed, kept as written", "token", sub.Token, "rule", line, "reason", err.Error())
		}
	}

	if sub.UsesCustomRules() {
		set, err := c.store.GetCustomRuleSet(ctx, sub.RuleID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			c.log.Warn("custom rule set not found, using source rules", "token", sub.Token, "ruleId", sub.RuleID)
		case err != nil:
			return nil, newComposeError("STORE_ERROR", "读取自定义规则集失败", err)
		default:
			lines, perr := customset.ParseRuleSet(set.Content)
			if perr == nil {
				return append(out, lines...), nil
			}
			c.log.Err(perr, "custom rule set unparseable, using source rules", "token", sub.Token, "ruleId", sub.RuleID)
		}
	}

	stored, err := c.store.GetRules(ctx, sources...)
	if err != nil {
		return nil, newComposeError("STORE_ERROR", "读取规则失败", err)
	}
	for _, r := range stored {
		out = append(out, r.Text)
	}
	return out, nil
}
