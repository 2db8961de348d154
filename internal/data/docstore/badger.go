package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

type badgerStore struct {
	db  *badger.DB
	log *logger.Logger
}

// OpenBadger opens an embedded store at dir; an empty dir runs in memory.
func OpenBadger(baseLog *logger.Logger, dir string) (Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &badgerStore{db: db, log: logger.OrNop(baseLog).With("repo", "BadgerDocumentRepo")}, nil
}

func (s *badgerStore) Collection(name string) Collection {
	return &badgerCollection{store: s, name: name}
}

func (s *badgerStore) Close() error { return s.db.Close() }

type badgerCollection struct {
	store *badgerStore
	name  string
}

func (c *badgerCollection) prefix() []byte { return []byte(c.name + "/") }

func (c *badgerCollection) key(id string) []byte { return []byte(c.name + "/" + id) }

func (c *badgerCollection) Get(_ context.Context, id string) (map[string]any, error) {
	var out map[string]any
	err := c.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.key(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", c.name, id, err)
	}
	return out, nil
}

func (c *badgerCollection) set(txn *badger.Txn, id string, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", c.name, id, err)
	}
	return txn.Set(c.key(id), raw)
}

func (c *badgerCollection) del(txn *badger.Txn, id string) error {
	if err := txn.Delete(c.key(id)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	return nil
}

func (c *badgerCollection) Set(_ context.Context, id string, data map[string]any) error {
	return c.store.db.Update(func(txn *badger.Txn) error { return c.set(txn, id, data) })
}

func (c *badgerCollection) Delete(_ context.Context, id string) error {
	return c.store.db.Update(func(txn *badger.Txn) error { return c.del(txn, id) })
}

func (c *badgerCollection) Query(ctx context.Context, field, op string, value any) ([]Doc, error) {
	if err := checkOp(op); err != nil {
		return nil, err
	}
	prefix := c.prefix()
	var out []Doc
	err := c.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			id := string(item.Key()[len(prefix):])
			var data map[string]any
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &data) }); err != nil {
				c.store.log.Warn("Skipping undecodable document", "collection", c.name, "id", id, "error", err)
				continue
			}
			if Match(data, field, op, value) {
				out = append(out, Doc{ID: id, Data: data})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.name, err)
	}
	return out, nil
}

// Batch applies all writes in one transaction.
func (c *badgerCollection) Batch(_ context.Context, writes []Write) error {
	return c.store.db.Update(func(txn *badger.Txn) error {
		for _, w := range writes {
			var err error
			if w.Data == nil {
				err = c.del(txn, w.ID)
			} else {
				err = c.set(txn, w.ID, w.Data)
			}
			if err != nil {
				return fmt.Errorf("batch %s/%s: %w", c.name, w.ID, err)
			}
		}
		return nil
	})
}
