package storage

import (
	"context"

	bolt "go.etcd.io/bbolt"

	"github.com/unkn0wn-root/reqstage/internal/errdef"
)

var bucketKV = []byte("kv")

type Bolt struct {
	db *bolt.DB
}

func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "open bolt store %s", path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketKV)
		return e
	}); err != nil {
		_ = db.Close()
		return nil, errdef.Wrap(errdef.CodeStorage, err, "create bucket")
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		// bolt slices only live for the transaction, copy out
		if v := tx.Bucket(bucketKV).Get([]byte(key)); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "get %s", key)
	}
	return value, nil
}

func (b *Bolt) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKV).Put([]byte(key), value)
	})
	if err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "set %s", key)
	}
	return nil
}

func (b *Bolt) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKV).Delete([]byte(key))
	})
	if err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "remove %s", key)
	}
	return nil
}

func (b *Bolt) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKV).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "list keys")
	}
	return keys, nil
}

func (b *Bolt) Close() error { return b.db.Close() }
