package cas

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"
	"github.com/tendermint/tm-db/memdb"

	"roundabci/store"
	"roundabci/types"
)

const casTable = "cas"

// DBStore keeps objects in a tm-db backend under cas/<hash>.
type DBStore struct {
	mtx sync.RWMutex
	db  tmdb.DB

	logger log.Logger
}

var _ Store = (*DBStore)(nil)

func NewDBStore(db tmdb.DB) *DBStore {
	return &DBStore{db: db, logger: log.NewNopLogger()}
}

// NewMemStore returns a store backed by an in-memory db.
func NewMemStore() *DBStore {
	return NewDBStore(memdb.NewDB())
}

func (s *DBStore) SetLogger(logger log.Logger) {
	s.logger = logger
}

// Put stores obj and returns its hash. Storing the same object twice is a no-op.
func (s *DBStore) Put(ctx context.Context, obj interface{}) (ContentHash, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	hash, bz, err := Hash(obj)
	if err != nil {
		return "", err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	if err := s.db.Set(store.GenKey(casTable, hash.String()), bz); err != nil {
		return "", errors.Wrapf(err, "put %s", hash)
	}
	s.logger.Debug("object stored", "hash", hash, "size", len(bz))
	return hash, nil
}

// Get decodes the object addressed by hash into ptr.
func (s *DBStore) Get(ctx context.Context, hash ContentHash, ptr interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := hash.ValidateBasic(); err != nil {
		return err
	}

	s.mtx.RLock()
	bz, err := s.db.Get(store.GenKey(casTable, hash.String()))
	s.mtx.RUnlock()
	if err != nil {
		return errors.Wrapf(err, "get %s", hash)
	}
	if bz == nil {
		return errors.Wrapf(ErrNotFound, "%s", hash)
	}
	if hashBytes(bz) != hash {
		return errors.Wrapf(ErrHashMismatch, "%s", hash)
	}
	return errors.Wrapf(types.DecodeJSON(bz, ptr), "decode %s", hash)
}

// Has reports whether hash is stored.
func (s *DBStore) Has(hash ContentHash) (bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.db.Has(store.GenKey(casTable, hash.String()))
}
