package repo

import (
	"context"

	"gorm.io/gorm"
)

const defaultBatchSize = 100

// ScopeFunc narrows a query.
type ScopeFunc func(*gorm.DB) *gorm.DB

// baseRepository holds the per-table operations every source-owned table
// shares: batch insert, select by source, delete by source.
type baseRepository[T any] struct {
	db *gorm.DB
}

func newBaseRepository[T any](db *gorm.DB) baseRepository[T] {
	return baseRepository[T]{db: db}
}

func (r baseRepository[T]) createBatch(ctx context.Context, tx *gorm.DB, items []*T) error {
	if len(items) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).CreateInBatches(items, defaultBatchSize).Error
}

func (r baseRepository[T]) findAll(ctx context.Context, scopes ...ScopeFunc) ([]*T, error) {
	list := make([]*T, 0)
	query := r.db.WithContext(ctx).Model(new(T))
	for _, s := range scopes {
		if s != nil {
			query = query.Scopes(s)
		}
	}
	if err := query.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r baseRepository[T]) deleteBySource(ctx context.Context, tx *gorm.DB, source string) error {
	return r.conn(tx).WithContext(ctx).Where("source = ?", source).Delete(new(T)).Error
}

func (r baseRepository[T]) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// bySources limits a query to the given sources; no sources means all.
func bySources(sources []string) ScopeFunc {
	if len(sources) == 0 {
		return nil
	}
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("source IN ?", sources)
	}
}

func orderBy(column string) ScopeFunc {
	return func(db *gorm.DB) *gorm.DB {
		return db.Order(column)
	}
}
