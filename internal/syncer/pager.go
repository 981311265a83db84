package syncer

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/store"
)

// queryRunner is satisfied by Executor.
type queryRunner interface {
	Run(ctx context.Context, q store.Query, forceRefresh bool) ([]store.Document, error)
}

type pageMetrics interface {
	RecordPageLoad(collection string)
}

// PagerConfig describes the feed a Pager walks.
type PagerConfig struct {
	Collection   string
	FilterField  string
	ExtraFilters []store.Filter
	PageSize     int
	Metrics      pageMetrics
	Logger       *zap.Logger
}

// pagerChunk is one ≤ store.MaxInValues slice of the filter set with its own
// cursor. Chunks drain at different rates, so sharing one cursor across them
// would skip documents in the slower chunks.
type pagerChunk struct {
	ids       []string
	cursor    *store.Cursor
	exhausted bool
}

// Pager issues cursor-based queries over an ordered feed, tracking per-chunk
// cursors and whether more pages exist. Feeds filtered by more ids than the
// store's multi-value cap are chunked into one query per slice of at most
// store.MaxInValues ids and unioned.
type Pager struct {
	exec queryRunner
	cfg  PagerConfig

	mu       sync.Mutex
	chunks   []*pagerChunk
	items    []store.Document
	seen     map[string]struct{}
	primed   bool
	hasMore  bool
	inFlight bool
}

// NewPager constructs a pager over the configured feed.
func NewPager(exec queryRunner, cfg PagerConfig) *Pager {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Pager{exec: exec, cfg: cfg, seen: make(map[string]struct{}), hasMore: false}
}

// Reset clears all pagination state. Must be called whenever the upstream
// filter set changes, e.g. after a class-membership refresh.
func (p *Pager) Reset(filterIDs []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunks = nil
	for _, chunk := range chunkIDs(filterIDs, store.MaxInValues) {
		p.chunks = append(p.chunks, &pagerChunk{ids: chunk})
	}
	if len(p.chunks) == 0 {
		p.chunks = []*pagerChunk{{}}
	}
	p.items = nil
	p.seen = make(map[string]struct{})
	p.primed = false
	p.hasMore = false
	p.inFlight = false
}

// LoadFirstPage resets the feed for the given filter set and loads the first
// page cache-first.
func (p *Pager) LoadFirstPage(ctx context.Context, filterIDs []string, forceRefresh bool) ([]store.Document, error) {
	p.Reset(filterIDs)

	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return p.snapshot(), nil
	}
	p.inFlight = true
	p.mu.Unlock()
	defer p.clearInFlight()

	docs, more, err := p.fetch(ctx, forceRefresh)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.appendLocked(docs)
	p.primed = true
	p.hasMore = more
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.RecordPageLoad(p.cfg.Collection)
	}
	return p.snapshotLocked(), nil
}

// LoadNextPage fetches the page after each chunk's cursor from the network.
// It is a no-op when the feed is exhausted, no first page has loaded, or a
// load is already in flight, preventing duplicate fetches and cursor
// corruption.
func (p *Pager) LoadNextPage(ctx context.Context) ([]store.Document, error) {
	p.mu.Lock()
	if p.inFlight || !p.primed || !p.hasMore {
		p.mu.Unlock()
		return p.snapshot(), nil
	}
	p.inFlight = true
	p.mu.Unlock()
	defer p.clearInFlight()

	docs, more, err := p.fetch(ctx, true)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.appendLocked(docs)
	p.hasMore = more
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.RecordPageLoad(p.cfg.Collection)
	}
	return p.snapshotLocked(), nil
}

// MergeWindow unions an externally fetched window (a per-class "deep dive")
// into the feed by id, newer fetch winning, then re-sorts descending by
// creation time. Pagination cursors and hasMore are left untouched.
func (p *Pager) MergeWindow(docs []store.Document) []store.Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range docs {
		if _, dup := p.seen[d.ID]; dup {
			for i := range p.items {
				if p.items[i].ID == d.ID {
					p.items[i] = d
					break
				}
			}
			continue
		}
		p.seen[d.ID] = struct{}{}
		p.items = append(p.items, d)
	}
	sortDocsDesc(p.items)
	return p.snapshotLocked()
}

// Items returns the current feed snapshot.
func (p *Pager) Items() []store.Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// HasMore reports whether another page may exist.
func (p *Pager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// fetch loads one page per non-exhausted chunk and unions the results. Each
// chunk's cursor advances from the oldest document of its own page, so a
// chunk with a deep backlog cannot drag the others' cursors past unseen
// documents.
func (p *Pager) fetch(ctx context.Context, forceRefresh bool) ([]store.Document, bool, error) {
	p.mu.Lock()
	chunks := append([]*pagerChunk(nil), p.chunks...)
	p.mu.Unlock()

	var union []store.Document
	more := false
	for _, chunk := range chunks {
		if chunk.exhausted {
			continue
		}
		q := store.Query{
			Collection: p.cfg.Collection,
			Filters:    append([]store.Filter(nil), p.cfg.ExtraFilters...),
			OrderBy:    "createdAt",
			Desc:       true,
			Limit:      p.cfg.PageSize,
			StartAfter: chunk.cursor,
		}
		if len(chunk.ids) > 0 {
			q.Filters = append(q.Filters, store.In(p.cfg.FilterField, chunk.ids))
		}
		docs, err := p.exec.Run(ctx, q, forceRefresh)
		if err != nil {
			return nil, false, err
		}
		if len(docs) < p.cfg.PageSize {
			chunk.exhausted = true
		} else {
			more = true
		}
		if len(docs) > 0 {
			last := docs[len(docs)-1]
			chunk.cursor = &store.Cursor{OrderValue: last.CreatedAt, ID: last.ID}
		}
		union = append(union, docs...)
	}
	sortDocsDesc(union)
	return union, more, nil
}

func (p *Pager) appendLocked(docs []store.Document) {
	for _, d := range docs {
		if _, dup := p.seen[d.ID]; dup {
			continue
		}
		p.seen[d.ID] = struct{}{}
		p.items = append(p.items, d)
	}
	sortDocsDesc(p.items)
}

func (p *Pager) clearInFlight() {
	p.mu.Lock()
	p.inFlight = false
	p.mu.Unlock()
}

func (p *Pager) snapshot() []store.Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Pager) snapshotLocked() []store.Document {
	out := make([]store.Document, len(p.items))
	copy(out, p.items)
	return out
}

// sortDocsDesc orders newest-first; equal timestamps keep insertion order.
func sortDocsDesc(docs []store.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
}

func chunkIDs(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
