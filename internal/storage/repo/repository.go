// Package repo is the gorm implementation of storage.Store.
package repo

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/John-Robertt/subhub/internal/model"
	"github.com/John-Robertt/subhub/internal/storage"
	"github.com/John-Robertt/subhub/internal/storage/db"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db          *gorm.DB
	proxies     baseRepository[ProxyRow]
	groups      baseRepository[GroupRow]
	rules       baseRepository[RuleRow]
	configItems baseRepository[ConfigItemRow]
}

var (
	_ storage.Store              = (*Repository)(nil)
	_ storage.SourceClearer      = (*Repository)(nil)
	_ storage.SubscriptionReader = (*Repository)(nil)
)

func New(gdb *gorm.DB) *Repository {
	return &Repository{
		db:          gdb,
		proxies:     newBaseRepository[ProxyRow](gdb),
		groups:      newBaseRepository[GroupRow](gdb),
		rules:       newBaseRepository[RuleRow](gdb),
		configItems: newBaseRepository[ConfigItemRow](gdb),
	}
}

// Migrate creates every table the repository uses.
func (r *Repository) Migrate() error {
	return db.Migrate(r.db, Models()...)
}

func (r *Repository) SaveProxies(ctx context.Context, proxies []model.Proxy) error {
	rows := make([]*ProxyRow, 0, len(proxies))
	for _, p := range proxies {
		row, err := toProxyRow(p)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	return r.proxies.createBatch(ctx, nil, rows)
}

func (r *Repository) GetProxies(ctx context.Context, sources ...string) ([]model.Proxy, error) {
	rows, err := r.proxies.findAll(ctx, bySources(sources), orderBy("seq"))
	if err != nil {
		return nil, err
	}
	sortBySourceThenPriority(rows, func(p *ProxyRow) (string, int) { return p.Source, int(p.Seq) })

	out := make([]model.Proxy, 0, len(rows))
	for _, row := range rows {
		p, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *Repository) ClearProxies(ctx context.Context, source string) error {
	return r.proxies.deleteBySource(ctx, nil, source)
}

func (r *Repository) SaveProxyGroups(ctx context.Context, groups []model.Group) error {
	rows := make([]*GroupRow, 0, len(groups))
	for _, g := range groups {
		row, err := toGroupRow(g)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	return r.groups.createBatch(ctx, nil, rows)
}

func (r *Repository) GetProxyGroups(ctx context.Context, sources ...string) ([]model.Group, error) {
	rows, err := r.groups.findAll(ctx, bySources(sources), orderBy("seq"))
	if err != nil {
		return nil, err
	}
	sortBySourceThenPriority(rows, func(g *GroupRow) (string, int) { return g.Source, g.Priority })

	out := make([]model.Group, 0, len(rows))
	for _, row := range rows {
		g, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (r *Repository) ClearProxyGroups(ctx context.Context, source string) error {
	return r.groups.deleteBySource(ctx, nil, source)
}

func (r *Repository) SaveRules(ctx context.Context, rules []model.Rule) error {
	rows := lo.Map(rules, func(rule model.Rule, _ int) *RuleRow { return toRuleRow(rule) })
	return r.rules.createBatch(ctx, nil, rows)
}

func (r *Repository) GetRules(ctx context.Context, sources ...string) ([]model.Rule, error) {
	rows, err := r.rules.findAll(ctx, bySources(sources), orderBy("seq"))
	if err != nil {
		return nil, err
	}
	sortBySourceThenPriority(rows, func(rr *RuleRow) (string, int) { return rr.Source, rr.Priority })
	return lo.Map(rows, func(row *RuleRow, _ int) model.Rule { return row.toModel() }), nil
}

func (r *Repository) ClearRules(ctx context.Context, source string) error {
	return r.rules.deleteBySource(ctx, nil, source)
}

// SaveConfigItem keeps the row (and so its position) of an existing
// (source, key) pair and only replaces the value.
func (r *Repository) SaveConfigItem(ctx context.Context, key string, value any, source string) error {
	encoded, err := encodeYAML(value)
	if err != nil {
		return fmt.Errorf("encode config item %q: %w", key, err)
	}
	row := &ConfigItemRow{Source: source, Key: key, Value: encoded}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source"}, {Name: "item_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(row).Error
}

func (r *Repository) GetAllConfigItems(ctx context.Context) ([]model.ConfigItem, error) {
	rows, err := r.configItems.findAll(ctx, orderBy("seq"))
	if err != nil {
		return nil, err
	}
	out := make([]model.ConfigItem, 0, len(rows))
	for _, row := range rows {
		v, err := decodeYAML(row.Value)
		if err != nil {
			return nil, fmt.Errorf("decode config item %s/%s: %w", row.Source, row.Key, err)
		}
		out = append(out, model.ConfigItem{Key: row.Key, Value: v, Source: row.Source})
	}
	return out, nil
}

func (r *Repository) ClearConfigItems(ctx context.Context, source string) error {
	return r.configItems.deleteBySource(ctx, nil, source)
}

// ClearSource drops proxies, groups, rules and config items of source in
// one transaction.
func (r *Repository) ClearSource(ctx context.Context, source string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.proxies.deleteBySource(ctx, tx, source); err != nil {
			return err
		}
		if err := r.groups.deleteBySource(ctx, tx, source); err != nil {
			return err
		}
		if err := r.rules.deleteBySource(ctx, tx, source); err != nil {
			return err
		}
		return r.configItems.deleteBySource(ctx, tx, source)
	})
}

// sortBySourceThenPriority orders rows (already in insertion order) by the
// first appearance of their source, then by priority within a source.
func sortBySourceThenPriority[T any](rows []*T, key func(*T) (string, int)) {
	rank := make(map[string]int)
	for _, row := range rows {
		src, _ := key(row)
		if _, ok := rank[src]; !ok {
			rank[src] = len(rank)
		}
	}
	slices.SortStableFunc(rows, func(a, b *T) int {
		sa, pa := key(a)
		sb, pb := key(b)
		if c := cmp.Compare(rank[sa], rank[sb]); c != 0 {
			return c
		}
		return cmp.Compare(pa, pb)
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}
