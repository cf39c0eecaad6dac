package ingest

import (
	"context"
	"sync"

	"github.com/John-Robertt/subhub/internal/logger"
	"github.com/John-Robertt/subhub/internal/storage"
)

// Summary reports what one ingestion saved.
type Summary struct {
	Source      string
	Proxies     int
	Groups      int
	Rules       int
	ConfigItems int
	Skipped     int
}

type Ingestor struct {
	store storage.Store
	log   logger.Logger
}

func New(store storage.Store, log logger.Logger) *Ingestor {
	if log == nil {
		log = logger.Nop()
	}
	return &Ingestor{store: store, log: log}
}

// Ingest parses doc and saves its records under source. It never deletes:
// records already stored for source stay. Use Refresher.Refresh to replace
// a source.
func (i *Ingestor) Ingest(ctx context.Context, doc string, source string) (Summary, error) {
	b, err := Parse(doc, source)
	if err != nil {
		return Summary{Source: source}, err
	}
	return i.Save(ctx, b)
}

// Save writes a parsed batch. A store failure stops at the failing record
// kind; kinds already written stay written.
func (i *Ingestor) Save(ctx context.Context, b *Batch) (Summary, error) {
	sum := Summary{Source: b.Source, Skipped: b.Skipped}

	if len(b.Proxies) > 0 {
		if err := i.store.SaveProxies(ctx, b.Proxies); err != nil {
			return sum, storeError(b.Source, "保存代理失败", err)
		}
		sum.Proxies = len(b.Proxies)
	}
	if len(b.Groups) > 0 {
		if err := i.store.SaveProxyGroups(ctx, b.Groups); err != nil {
			return sum, storeError(b.Source, "保存代理组失败", err)
		}
		sum.Groups = len(b.Groups)
	}
	if len(b.Rules) > 0 {
		if err := i.store.SaveRules(ctx, b.Rules); err != nil {
			return sum, storeError(b.Source, "保存规则失败", err)
		}
		sum.Rules = len(b.Rules)
	}
	for _, item := range b.ConfigItems {
		if err := i.store.SaveConfigItem(ctx, item.Key, item.Value, b.Source); err != nil {
			return sum, storeError(b.Source, "保存配置项失败："+item.Key, err)
		}
		sum.ConfigItems++
	}

	if sum.Skipped > 0 {
		i.log.Warn("entries skipped during ingestion", "source", b.Source, "skipped", sum.Skipped)
	}
	i.log.Info("source ingested",
		"source", b.Source,
		"proxies", sum.Proxies,
		"groups", sum.Groups,
		"rules", sum.Rules,
		"configItems", sum.ConfigItems,
	)
	return sum, nil
}

func storeError(source, message string, cause error) *IngestError {
	return newIngestError(source, "STORE_ERROR", message, 0, cause)
}

// Refresher replaces a source's records. Refreshes of the same source are
// serialized; different sources proceed in parallel.
type Refresher struct {
	ing *Ingestor

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRefresher(ing *Ingestor) *Refresher {
	return &Refresher{ing: ing, locks: make(map[string]*sync.Mutex)}
}

func (r *Refresher) lock(source string) func() {
	r.mu.Lock()
	l, ok := r.locks[source]
	if !ok {
		l = &sync.Mutex{}
		r.locks[source] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// BeginRefresh deletes every proxy, group, rule and config item of source.
func (r *Refresher) BeginRefresh(ctx context.Context, source string) error {
	unlock := r.lock(source)
	defer unlock()
	return r.clear(ctx, source)
}

// Refresh parses doc first, so a bad document leaves the stored source
// untouched, then clears the source and saves the new records.
//
// Clearing and saving are separate store calls; a reader running at the
// same time may see the source empty or half written.
func (r *Refresher) Refresh(ctx context.Context, source string, doc string) (Summary, error) {
	b, err := Parse(doc, source)
	if err != nil {
		return Summary{Source: source}, err
	}

	unlock := r.lock(source)
	defer unlock()

	if err := r.clear(ctx, source); err != nil {
		return Summary{Source: source}, err
	}
	return r.ing.Save(ctx, b)
}

func (r *Refresher) clear(ctx context.Context, source string) error {
	store := r.ing.store
	if c, ok := store.(storage.SourceClearer); ok {
		if err := c.ClearSource(ctx, source); err != nil {
			return storeError(source, "清空来源失败", err)
		}
		return nil
	}
	steps := []func(context.Context, string) error{
		store.ClearProxies,
		store.ClearProxyGroups,
		store.ClearRules,
		store.ClearConfigItems,
	}
	for _, fn := range steps {
		if err := fn(ctx, source); err != nil {
			return storeError(source, "清空来源失败", err)
		}
	}
	return nil
}
