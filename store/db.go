package store

import (
	"fmt"

	"github.com/pkg/errors"
	tmdb "github.com/tendermint/tm-db"
	leveldb "github.com/tendermint/tm-db/goleveldb"
	"github.com/tendermint/tm-db/memdb"
)

const (
	BackendMemDB     = "memdb"
	BackendGoLevelDB = "goleveldb"
)

// NewDB opens a key-value backend for the given name.
// memdb ignores dir; goleveldb creates <dir>/<name>.db.
func NewDB(name, backend, dir string) (tmdb.DB, error) {
	switch backend {
	case "", BackendMemDB:
		return memdb.NewDB(), nil
	case BackendGoLevelDB:
		db, err := leveldb.NewDB(name, dir)
		if err != nil {
			return nil, errors.Wrapf(err, "open goleveldb %s in %s", name, dir)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown db backend %q", backend)
	}
}

// PrefixedDB scopes db to keys starting with prefix, so several stores of one
// agent can share a single backend.
func PrefixedDB(db tmdb.DB, prefix string) tmdb.DB {
	return tmdb.NewPrefixDB(db, []byte(prefix))
}

// GenKey concatenates table and primary key the way every store of the repo
// lays out its keys.
func GenKey(table string, primaryKey string) []byte {
	return []byte(table + "/" + primaryKey)
}

// Keys returns every key of db in ascending order.
func Keys(db tmdb.DB) ([][]byte, error) {
	ite, err := db.Iterator(nil, nil)
	if err != nil {
		return nil, err
	}
	defer ite.Close()

	keys := [][]byte{}
	for ; ite.Valid(); ite.Next() {
		k := make([]byte, len(ite.Key()))
		copy(k, ite.Key())
		keys = append(keys, k)
	}
	return keys, ite.Error()
}
