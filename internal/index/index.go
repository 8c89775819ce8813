// Package index keeps a cross-reference index across catalogs in Badger.
//
// Every harvested record is stored under xref:{catalog}:{id}. Each of its
// non-empty foreign references also gets an entry (a stub until that catalog
// is harvested itself) that learns the reverse link, so a lookup from any
// side finds the others.
package index

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/animap/harvester/internal/domain"
	"github.com/animap/harvester/internal/normalize"
)

const xrefPrefix = "xref:"

// Entry is the indexed view of one catalog item.
type Entry struct {
	Catalog   domain.Catalog    `json:"catalog"`
	ID        domain.Identifier `json:"id"`
	Refs      domain.CrossRefs  `json:"refs"`
	Title     string            `json:"title,omitzero"`
	MediaKey  string            `json:"media_key,omitzero"`
	Stub      bool              `json:"stub,omitzero"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Index wraps a Badger database.
type Index struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time

	// Serializes read-modify-write updates from concurrent workers.
	mu sync.Mutex
}

// Open opens or creates the index at path.
func Open(path string, logger *slog.Logger) (*Index, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = true
	opts.CompactL0OnClose = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	logger.Debug("cross-reference index opened", "path", path)
	return &Index{db: db, logger: logger, now: time.Now}, nil
}

// Close closes the database.
func (x *Index) Close() error {
	return x.db.Close()
}

func key(c domain.Catalog, id domain.Identifier) []byte {
	return fmt.Appendf(nil, "%s%s:%s", xrefPrefix, c, id)
}

// Record indexes a harvested record and propagates its references.
//
// The record's own entry takes the new references, keeping previously learned
// ones where the new set is empty. Every referenced entry only has its empty
// slots filled; existing values are never overwritten.
func (x *Index) Record(ctx context.Context, rec domain.Record, title string, year int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	now := x.now().UTC()
	mediaKey := normalize.MediaKey(title, year, string(rec.Kind))

	err := x.db.Update(func(txn *badger.Txn) error {
		own, _, err := get(txn, key(rec.Catalog, rec.ID))
		if err != nil {
			return err
		}

		refs := domain.NewCrossRefs(rec.Catalog, rec.ID)
		for _, c := range domain.Catalogs {
			refs.Set(rec.Catalog, c, rec.Refs[c])
		}
		refs.Merge(own.Refs)

		own = Entry{
			Catalog:   rec.Catalog,
			ID:        rec.ID,
			Refs:      refs,
			Title:     firstNonEmpty(title, own.Title),
			MediaKey:  firstNonEmpty(mediaKey, own.MediaKey),
			UpdatedAt: now,
		}
		if err := put(txn, own); err != nil {
			return err
		}

		for _, c := range refs.Known(rec.Catalog) {
			other, found, err := get(txn, key(c, domain.Identifier(refs[c])))
			if err != nil {
				return err
			}
			if !found {
				other = Entry{
					Catalog: c,
					ID:      domain.Identifier(refs[c]),
					Refs:    domain.NewCrossRefs(c, domain.Identifier(refs[c])),
					Stub:    true,
				}
			}

			changed := other.Refs.Merge(refs)
			if other.Title == "" && own.Title != "" {
				other.Title = own.Title
				changed = true
			}
			if other.MediaKey == "" && own.MediaKey != "" {
				other.MediaKey = own.MediaKey
				changed = true
			}
			if !changed && found {
				continue
			}
			other.UpdatedAt = now
			if err := put(txn, other); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("index %s:%s: %w", rec.Catalog, rec.ID, err)
	}
	return nil
}

// Lookup returns the entry for an item.
func (x *Index) Lookup(ctx context.Context, c domain.Catalog, id domain.Identifier) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}

	var (
		e     Entry
		found bool
	)
	err := x.db.View(func(txn *badger.Txn) error {
		var err error
		e, found, err = get(txn, key(c, id))
		return err
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("lookup %s:%s: %w", c, id, err)
	}
	return e, found, nil
}

// FindByTitle returns up to limit entries whose title slug contains the slug
// of text, ordered by key.
func (x *Index) FindByTitle(ctx context.Context, text string, limit int) ([]Entry, error) {
	needle := normalize.Slug(text)
	if needle == "" {
		return nil, nil
	}

	var out []Entry
	err := x.scan(ctx, func(e Entry) bool {
		if strings.Contains(normalize.Slug(e.Title), needle) {
			out = append(out, e)
		}
		return limit <= 0 || len(out) < limit
	})
	if err != nil {
		return nil, fmt.Errorf("find by title: %w", err)
	}
	return out, nil
}

// CatalogCoverage summarizes the entries of one catalog.
type CatalogCoverage struct {
	// Entries counts harvested entries.
	Entries int
	// Stubs counts entries only known through another catalog's references.
	Stubs int
	// Linked counts harvested entries with a reference to each other catalog.
	Linked map[domain.Catalog]int
}

// Coverage computes per-catalog link statistics.
func (x *Index) Coverage(ctx context.Context) (map[domain.Catalog]*CatalogCoverage, error) {
	out := make(map[domain.Catalog]*CatalogCoverage)
	err := x.scan(ctx, func(e Entry) bool {
		cov, ok := out[e.Catalog]
		if !ok {
			cov = &CatalogCoverage{Linked: make(map[domain.Catalog]int)}
			out[e.Catalog] = cov
		}
		if e.Stub {
			cov.Stubs++
			return true
		}
		cov.Entries++
		for _, c := range e.Refs.Known(e.Catalog) {
			cov.Linked[c]++
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("coverage: %w", err)
	}
	return out, nil
}

// scan calls fn for every entry until fn returns false.
func (x *Index) scan(ctx context.Context, fn func(Entry) bool) error {
	return x.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(xrefPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				x.logger.Warn("skipping unreadable index entry",
					"key", string(bytes.Clone(it.Item().Key())),
					"error", err,
				)
				continue
			}
			if !fn(e) {
				return nil
			}
		}
		return nil
	})
}

func get(txn *badger.Txn, k []byte) (Entry, bool, error) {
	item, err := txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var e Entry
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &e)
	}); err != nil {
		return Entry{}, false, err
	}
	e.Refs = e.Refs.Normalize()
	return e, true, nil
}

func put(txn *badger.Txn, e Entry) error {
	data, err := json.Marshal(e, json.Deterministic(true))
	if err != nil {
		return err
	}
	return txn.Set(key(e.Catalog, e.ID), data)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
