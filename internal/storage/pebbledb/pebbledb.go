// Package pebbledb persists the local conversation snapshot in a Pebble database.
package pebbledb

import (
	"context"
	"errors"

	"github.com/cockroachdb/pebble"
)

var snapshotKey = []byte("local:snapshot")

type Pebble struct {
	db *pebble.DB
}

// Open opens (or creates) a Pebble database in dir.
func Open(dir string) (*Pebble, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Pebble{db: db}, nil
}

func (p *Pebble) Load(_ context.Context) ([]byte, error) {
	v, closer, err := p.db.Get(snapshotKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

func (p *Pebble) Save(_ context.Context, data []byte) error {
	return p.db.Set(snapshotKey, data, pebble.Sync)
}

func (p *Pebble) Close() error {
	return p.db.Close()
}
