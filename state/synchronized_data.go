package state

import (
	"sort"
	"strconv"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/crypto/merkle"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	tmdb "github.com/tendermint/tm-db"
	"github.com/tendermint/tm-db/memdb"

	"roundabci/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SynchronizedData is the replicated key-value state of a run.
// All agents that processed the same committed rounds hold identical data.
//
// Values are stored in their canonical JSON encoding, so reads return the
// decoded form (numbers come back as float64, objects as map[string]interface{}).
type SynchronizedData struct {
	mtx sync.RWMutex
	db  tmdb.DB

	// period counts how many times the app went back to its initial round
	period int64
}

// NewSynchronizedData returns an empty store backed by an in-memory db.
func NewSynchronizedData() *SynchronizedData {
	return NewSynchronizedDataWithDB(memdb.NewDB())
}

// NewSynchronizedDataWithDB uses db as backend. db is expected to be empty
// or to hold the data of this same run.
func NewSynchronizedDataWithDB(db tmdb.DB) *SynchronizedData {
	return &SynchronizedData{db: db}
}

// Get returns the decoded value of key.
func (sd *SynchronizedData) Get(key string) (interface{}, bool) {
	sd.mtx.RLock()
	defer sd.mtx.RUnlock()

	bz, err := sd.db.Get([]byte(key))
	if err != nil || bz == nil {
		return nil, false
	}
	var v interface{}
	if err := json.Unmarshal(bz, &v); err != nil {
		return nil, false
	}
	return v, true
}

// GetStrict is Get failing with ErrMissingKey when key was never written.
func (sd *SynchronizedData) GetStrict(key string) (interface{}, error) {
	v, ok := sd.Get(key)
	if !ok {
		return nil, errors.Wrap(types.ErrMissingKey, key)
	}
	return v, nil
}

// GetInto decodes the value of key into ptr.
func (sd *SynchronizedData) GetInto(key string, ptr interface{}) error {
	sd.mtx.RLock()
	defer sd.mtx.RUnlock()

	bz, err := sd.db.Get([]byte(key))
	if err != nil {
		return err
	}
	if bz == nil {
		return errors.Wrap(types.ErrMissingKey, key)
	}
	return json.Unmarshal(bz, ptr)
}

// GetString returns the value of key when it holds a string.
func (sd *SynchronizedData) GetString(key string) (string, bool) {
	v, ok := sd.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (sd *SynchronizedData) Has(key string) bool {
	sd.mtx.RLock()
	defer sd.mtx.RUnlock()

	ok, err := sd.db.Has([]byte(key))
	return err == nil && ok
}

// Keys returns all keys in ascending order.
func (sd *SynchronizedData) Keys() []string {
	sd.mtx.RLock()
	defer sd.mtx.RUnlock()

	keys, _ := sd.keys()
	return keys
}

func (sd *SynchronizedData) keys() ([]string, error) {
	ite, err := sd.db.Iterator(nil, nil)
	if err != nil {
		return nil, err
	}
	defer ite.Close()

	keys := []string{}
	for ; ite.Valid(); ite.Next() {
		keys = append(keys, string(ite.Key()))
	}
	return keys, ite.Error()
}

// Update writes all kvs in one batch. Either every value is written or none.
func (sd *SynchronizedData) Update(kvs map[string]interface{}) error {
	if len(kvs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(kvs))
	encoded := make(map[string][]byte, len(kvs))
	for k, v := range kvs {
		if k == "" {
			return errors.New("empty key")
		}
		bz, err := types.CanonicalJSON(v)
		if err != nil {
			return errors.Wrapf(err, "encode value of %s", k)
		}
		keys = append(keys, k)
		encoded[k] = bz
	}
	sort.Strings(keys)

	sd.mtx.Lock()
	defer sd.mtx.Unlock()

	batch := sd.db.NewBatch()
	defer batch.Close()
	for _, k := range keys {
		if err := batch.Set([]byte(k), encoded[k]); err != nil {
			return err
		}
	}
	return batch.Write()
}

// Collection decodes a collection key written by a round: sender -> value.
func (sd *SynchronizedData) Collection(key string) (map[types.AgentID]interface{}, error) {
	raw := map[string]interface{}{}
	if err := sd.GetInto(key, &raw); err != nil {
		return nil, err
	}
	res := make(map[types.AgentID]interface{}, len(raw))
	for k, v := range raw {
		res[types.AgentID(k)] = v
	}
	return res, nil
}

// Snapshot returns a decoded copy of the whole store.
func (sd *SynchronizedData) Snapshot() map[string]interface{} {
	sd.mtx.RLock()
	defer sd.mtx.RUnlock()

	res := map[string]interface{}{}
	ite, err := sd.db.Iterator(nil, nil)
	if err != nil {
		return res
	}
	defer ite.Close()

	for ; ite.Valid(); ite.Next() {
		var v interface{}
		if err := json.Unmarshal(ite.Value(), &v); err == nil {
			res[string(ite.Key())] = v
		}
	}
	return res
}

// Hash returns the merkle root over the period and every key/value pair.
// Replicas hold bit-identical data iff their hashes are equal.
func (sd *SynchronizedData) Hash() tmbytes.HexBytes {
	sd.mtx.RLock()
	defer sd.mtx.RUnlock()

	leaves := [][]byte{[]byte("period:" + strconv.FormatInt(sd.period, 10))}
	ite, err := sd.db.Iterator(nil, nil)
	if err != nil {
		return nil
	}
	defer ite.Close()

	for ; ite.Valid(); ite.Next() {
		leaf := make([]byte, 0, len(ite.Key())+len(ite.Value())+1)
		leaf = append(leaf, ite.Key()...)
		leaf = append(leaf, 0x00)
		leaf = append(leaf, ite.Value()...)
		leaves = append(leaves, leaf)
	}
	return merkle.HashFromByteSlices(leaves)
}

func (sd *SynchronizedData) Period() int64 {
	sd.mtx.RLock()
	defer sd.mtx.RUnlock()
	return sd.period
}

// ResetPeriod starts a new period: every key except keep is dropped.
func (sd *SynchronizedData) ResetPeriod(keep []string) error {
	persisted := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		persisted[k] = struct{}{}
	}

	sd.mtx.Lock()
	defer sd.mtx.Unlock()

	keys, err := sd.keys()
	if err != nil {
		return err
	}

	batch := sd.db.NewBatch()
	defer batch.Close()
	for _, k := range keys {
		if _, ok := persisted[k]; ok {
			continue
		}
		if err := batch.Delete([]byte(k)); err != nil {
			return err
		}
	}
	if err := batch.Write(); err != nil {
		return err
	}
	sd.period++
	return nil
}

// Copy returns a detached in-memory copy with the same content and period.
func (sd *SynchronizedData) Copy() *SynchronizedData {
	sd.mtx.RLock()
	defer sd.mtx.RUnlock()

	cp := NewSynchronizedData()
	cp.period = sd.period

	ite, err := sd.db.Iterator(nil, nil)
	if err != nil {
		return cp
	}
	defer ite.Close()
	for ; ite.Valid(); ite.Next() {
		_ = cp.db.Set(append([]byte{}, ite.Key()...), append([]byte{}, ite.Value()...))
	}
	return cp
}

func (sd *SynchronizedData) Close() error {
	return sd.db.Close()
}
