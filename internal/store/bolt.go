package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/soyeahso/rcmesh/internal/domain"
	"github.com/soyeahso/rcmesh/internal/logging"
	bbolt "go.etcd.io/bbolt"
)

var bucketScopes = []byte("scopes")

var (
	valueOn  = []byte{1}
	valueOff = []byte{0}
)

// BoltSubscriptions stores flags in a bbolt file: one nested bucket per
// scope under "scopes", keyed by channel name.
type BoltSubscriptions struct {
	bolt *bbolt.DB
	log  *logging.Logger
}

// OpenBolt opens or creates the bbolt file at path.
func OpenBolt(path string, log *logging.Logger) (*BoltSubscriptions, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketScopes)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}
	l := log.Sub("store")
	l.Debug().Str("path", path).Msg("bolt store opened")
	return &BoltSubscriptions{bolt: db, log: l}, nil
}

// Path returns the filesystem path of the bbolt file.
func (b *BoltSubscriptions) Path() string { return b.bolt.Path() }

func (b *BoltSubscriptions) Load(_ context.Context, scope string) (map[string]bool, error) {
	flags := make(map[string]bool)
	err := b.bolt.View(func(tx *bbolt.Tx) error {
		sb := tx.Bucket(bucketScopes).Bucket([]byte(scope))
		if sb == nil {
			return nil
		}
		return sb.ForEach(func(k, v []byte) error {
			flags[string(k)] = len(v) > 0 && v[0] == 1
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: load %s: %w", scope, err)
	}
	return flags, nil
}

func (b *BoltSubscriptions) Save(_ context.Context, scope, name string, autoJoin bool) error {
	v := valueOff
	if autoJoin {
		v = valueOn
	}
	err := b.bolt.Update(func(tx *bbolt.Tx) error {
		sb, err := tx.Bucket(bucketScopes).CreateBucketIfNotExists([]byte(scope))
		if err != nil {
			return err
		}
		return sb.Put([]byte(strings.ToLower(name)), v)
	})
	if err != nil {
		return fmt.Errorf("boltstore: save %s/%s: %w", scope, name, err)
	}
	return nil
}

// Scopes returns scope bucket names in key order.
func (b *BoltSubscriptions) Scopes(context.Context) ([]string, error) {
	var scopes []string
	err := b.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketScopes).ForEachBucket(func(k []byte) error {
			scopes = append(scopes, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: scopes: %w", err)
	}
	return scopes, nil
}

func (b *BoltSubscriptions) List(ctx context.Context, scope string) ([]domain.Subscription, error) {
	flags, err := b.Load(ctx, scope)
	if err != nil {
		return nil, err
	}
	return toList(scope, flags), nil
}

// Close closes the bbolt file.
func (b *BoltSubscriptions) Close() error {
	if b.bolt != nil {
		return b.bolt.Close()
	}
	return nil
}
