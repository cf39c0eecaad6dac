// Package storage defines the persistence contract used by ingestion and
// composition. The gorm implementation lives in storage/repo.
package storage

import (
	"context"
	"errors"

	"github.com/John-Robertt/subhub/internal/model"
)

// ErrNotFound is returned by single-record lookups when nothing matches.
var ErrNotFound = errors.New("storage: record not found")

// Store is the contract between the core and the database.
//
// Get* methods with a sources argument return every source when it is
// empty. Proxies come back in insertion order; groups and rules come back
// grouped by source (in order of first insertion) and sorted by priority
// within a source. Clear* methods only touch the named source.
type Store interface {
	SaveProxies(ctx context.Context, proxies []model.Proxy) error
	GetProxies(ctx context.Context, sources ...string) ([]model.Proxy, error)
	ClearProxies(ctx context.Context, source string) error

	SaveProxyGroups(ctx context.Context, groups []model.Group) error
	GetProxyGroups(ctx context.Context, sources ...string) ([]model.Group, error)
	ClearProxyGroups(ctx context.Context, source string) error

	SaveRules(ctx context.Context, rules []model.Rule) error
	GetRules(ctx context.Context, sources ...string) ([]model.Rule, error)
	ClearRules(ctx context.Context, source string) error

	// SaveConfigItem upserts on (source, key).
	SaveConfigItem(ctx context.Context, key string, value any, source string) error
	GetAllConfigItems(ctx context.Context) ([]model.ConfigItem, error)
	ClearConfigItems(ctx context.Context, source string) error

	GetCustomGroupSet(ctx context.Context, id string) (*model.CustomSet, error)
	GetCustomRuleSet(ctx context.Context, id string) (*model.CustomSet, error)
}

// SourceClearer is implemented by stores that can drop every record of a
// source in one transaction.
type SourceClearer interface {
	ClearSource(ctx context.Context, source string) error
}

// SubscriptionReader looks subscriptions up by token.
type SubscriptionReader interface {
	GetSubscription(ctx context.Context, token string) (*model.Subscription, error)
}
