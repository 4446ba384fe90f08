package session

import (
	"fmt"
	"strings"

	"github.com/ageniuscoder/tradechat/internal/storage/boltdb"
	"github.com/ageniuscoder/tradechat/internal/storage/pebbledb"
	"github.com/ageniuscoder/tradechat/internal/storage/sqlite"
	"github.com/ageniuscoder/tradechat/internal/store"
)

// OpenPersister opens the durable local medium named by driver.
func OpenPersister(driver, path string) (store.Persister, error) {
	var (
		p   store.Persister
		err error
	)
	switch driver {
	case "sqlite", "":
		dsn := path
		if !strings.HasPrefix(dsn, "file:") {
			dsn = "file:" + path
		}
		p, err = sqlite.Open(dsn)
	case "bolt":
		p, err = boltdb.Open(path)
	case "pebble":
		p, err = pebbledb.Open(path)
	default:
		return nil, fmt.Errorf("unknown local driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store at %s: %w", driver, path, err)
	}
	return p, nil
}
