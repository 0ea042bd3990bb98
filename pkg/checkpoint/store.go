// Package checkpoint persists finished sweep points in BadgerDB so that an
// interrupted sweep can be resumed without re-running them.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"sync"

	"github.com/dd0wney/netharness/pkg/logging"
	"github.com/dd0wney/netharness/pkg/workflow"
	"github.com/dgraph-io/badger/v4"
)

// prefixRow namespaces row keys: row:len(digest):digest:point -> gob(workflow.Row)
const prefixRow = byte(0x01)

var (
	// ErrClosed is returned by a closed store.
	ErrClosed = errors.New("checkpoint store closed")
	// ErrNoDigest is returned for a protocol without a digest, which would
	// share checkpoints with every other such protocol.
	ErrNoDigest = errors.New("protocol has no digest")
)

// Options configures a Store.
type Options struct {
	Dir        string
	InMemory   bool
	SyncWrites bool
	Logger     logging.Logger
}

// Store implements workflow.Checkpoints.
type Store struct {
	db     *badger.DB
	log    logging.Logger
	mu     sync.RWMutex
	closed bool
}

// Open opens or creates the store in dir.
func Open(dir string) (*Store, error) {
	return OpenWithOptions(Options{Dir: dir})
}

// OpenWithOptions opens a store.
func OpenWithOptions(opts Options) (*Store, error) {
	bo := badger.DefaultOptions(opts.Dir).
		WithInMemory(opts.InMemory).
		WithSyncWrites(opts.SyncWrites).
		WithLogger(nil).
		WithMemTableSize(8 << 20).
		WithValueLogFileSize(16 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4)
	if opts.InMemory {
		bo.Dir, bo.ValueDir = "", ""
	}

	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	return &Store{db: db, log: logging.OrNop(opts.Logger)}, nil
}

func rowPrefix(digest string) []byte {
	k := make([]byte, 0, len(digest)+binary.MaxVarintLen64+1)
	k = append(k, prefixRow)
	k = binary.AppendUvarint(k, uint64(len(digest)))
	return append(k, digest...)
}

func rowKey(digest string, point int) []byte {
	return binary.BigEndian.AppendUint64(rowPrefix(digest), uint64(point))
}

func (s *Store) check(digest string) error {
	if digest == "" {
		return ErrNoDigest
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func encodeRow(row workflow.Row) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(row); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRow(data []byte) (workflow.Row, error) {
	var row workflow.Row
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&row)
	return row, err
}

// Load implements workflow.Checkpoints.
func (s *Store) Load(ctx context.Context, digest string, point int) (workflow.Row, bool, error) {
	if err := s.check(digest); err != nil {
		return workflow.Row{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return workflow.Row{}, false, err
	}

	var (
		row   workflow.Row
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(rowKey(digest, point))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decodeErr error
			row, decodeErr = decodeRow(val)
			found = decodeErr == nil
			return decodeErr
		})
	})
	if err != nil {
		return workflow.Row{}, false, fmt.Errorf("load point %d: %w", point, err)
	}
	return row, found, nil
}

// Save implements workflow.Checkpoints. The restored flag is not stored.
func (s *Store) Save(ctx context.Context, digest string, row workflow.Row) error {
	if err := s.check(digest); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	row.Restored = false
	data, err := encodeRow(row)
	if err != nil {
		return fmt.Errorf("failed to encode row: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(rowKey(digest, row.Point), data)
	}); err != nil {
		return fmt.Errorf("save point %d: %w", row.Point, err)
	}
	s.log.Debug("checkpoint saved", logging.SweepPoint(row.Point), logging.String("digest", digest))
	return nil
}

// Rows returns every stored row of digest in point order.
func (s *Store) Rows(digest string) ([]workflow.Row, error) {
	if err := s.check(digest); err != nil {
		return nil, err
	}
	var rows []workflow.Row
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := rowPrefix(digest)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(func(val []byte) error {
				row, err := decodeRow(val)
				if err != nil {
					return err
				}
				rows = append(rows, row)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return rows, err
}

// Forget drops every row of digest and returns how many there were.
func (s *Store) Forget(digest string) (int, error) {
	if err := s.check(digest); err != nil {
		return 0, err
	}
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := rowPrefix(digest)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Close closes the store. Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
