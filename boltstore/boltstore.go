// Package boltstore implements a durable transactions.TransactionStore on
// top of bbolt.
package boltstore

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	transactions "github.com/geodata/featuretxn"
)

var transactionsBucketName = []byte("transactions")

const revisionLen = 8

// Config specifies the options of a Store.
type Config struct {
	// Path is the bbolt database file.
	Path string

	// OpenTimeout bounds waiting for the file lock held by another process.
	OpenTimeout time.Duration

	// NoSync skips fsync after each commit. Only meant for tests.
	NoSync bool

	Logger *zap.Logger
}

// Store keeps transaction documents in a single bbolt bucket. Each value is
// the 8 byte big endian revision followed by the document.
type Store struct {
	db *bolt.DB
	lg *zap.Logger
}

var (
	_ transactions.TransactionStore  = &Store{}
	_ transactions.TransactionLister = &Store{}
)

// Open opens or creates the database at cfg.Path.
func Open(cfg Config) (*Store, error) {
	lg := cfg.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 10 * time.Second
	}

	db, err := bolt.Open(cfg.Path, 0600, &bolt.Options{
		Timeout: cfg.OpenTimeout,
		NoSync:  cfg.NoSync,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", cfg.Path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(transactionsBucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to create bucket")
	}

	lg.Info("opened transaction store", zap.String("path", cfg.Path))

	return &Store{
		db: db,
		lg: lg,
	}, nil
}

// Get implements transactions.TransactionStore.
func (s *Store) Get(ctx context.Context, id string) ([]byte, transactions.Revision, error) {
	var data []byte
	var rev transactions.Revision

	err := s.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(transactionsBucketName).Get([]byte(id))
		if value == nil {
			return errors.Wrapf(transactions.ErrTransactionNotFound, "transaction %s", id)
		}

		var err error
		rev, data, err = decodeValue(value)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	return data, rev, nil
}

// Put implements transactions.TransactionStore.
func (s *Store) Put(ctx context.Context, id string, data []byte, expected transactions.Revision) (transactions.Revision, error) {
	var rev transactions.Revision

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(transactionsBucketName)
		key := []byte(id)

		value := bucket.Get(key)
		if value == nil {
			if expected != 0 {
				return errors.Wrapf(transactions.ErrRevisionMismatch, "transaction %s no longer exists", id)
			}
		} else {
			current, _, err := decodeValue(value)
			if err != nil {
				return err
			}
			if current != expected {
				return errors.Wrapf(transactions.ErrRevisionMismatch,
					"transaction %s is at revision %d, expected %d", id, current, expected)
			}
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		rev = transactions.Revision(seq)

		return bucket.Put(key, encodeValue(rev, data))
	})
	if err != nil {
		if !errors.Is(err, transactions.ErrRevisionMismatch) {
			s.lg.Warn("failed to write transaction", zap.String("txn", id), zap.Error(err))
		}
		return 0, err
	}

	return rev, nil
}

// Delete implements transactions.TransactionStore.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(transactionsBucketName)
		key := []byte(id)

		if bucket.Get(key) == nil {
			return errors.Wrapf(transactions.ErrTransactionNotFound, "transaction %s", id)
		}

		return bucket.Delete(key)
	})
}

// ForEach implements transactions.TransactionLister. It runs inside a read
// transaction, so fn must not write to the store. A corrupt value is handed
// to fn as nil data.
func (s *Store) ForEach(ctx context.Context, fn func(id string, data []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(transactionsBucketName).ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			_, data, err := decodeValue(v)
			if err != nil {
				s.lg.Warn("corrupt transaction value",
					zap.ByteString("key", k),
					zap.Error(err))
				data = nil
			}
			return fn(string(k), data)
		})
	})
}

// Len returns the number of stored transactions.
func (s *Store) Len() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(transactionsBucketName).Stats().KeyN
		return nil
	})
	return n, err
}

// Close implements transactions.TransactionStore.
func (s *Store) Close() error {
	s.lg.Info("closing transaction store", zap.String("path", s.db.Path()))
	return s.db.Close()
}

func encodeValue(rev transactions.Revision, data []byte) []byte {
	value := make([]byte, revisionLen+len(data))
	binary.BigEndian.PutUint64(value, uint64(rev))
	copy(value[revisionLen:], data)
	return value
}

// decodeValue copies out of value, which is only valid inside the bbolt
// transaction.
func decodeValue(value []byte) (transactions.Revision, []byte, error) {
	if len(value) < revisionLen {
		return 0, nil, errors.Errorf("corrupt value of %d bytes", len(value))
	}

	rev := transactions.Revision(binary.BigEndian.Uint64(value))
	data := make([]byte, len(value)-revisionLen)
	copy(data, value[revisionLen:])
	return rev, data, nil
}
