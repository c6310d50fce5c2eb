// Package cas is a content-addressed object store. Objects are JSON values
// addressed by the hash of their canonical encoding, so every agent storing
// the same object obtains the same hash.
package cas

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/crypto/tmhash"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"

	"roundabci/types"
)

var (
	ErrNotFound     = errors.New("object not found")
	ErrInvalidHash  = errors.New("invalid content hash")
	ErrHashMismatch = errors.New("stored object does not match its hash")
)

// ContentHash addresses an object by content.
type ContentHash string

func (h ContentHash) String() string { return string(h) }

func (h ContentHash) ValidateBasic() error {
	if len(h) != 2*tmhash.Size {
		return errors.Wrapf(ErrInvalidHash, "%q has length %d", string(h), len(h))
	}
	if _, err := hex.DecodeString(string(h)); err != nil || strings.ToLower(string(h)) != string(h) {
		return errors.Wrapf(ErrInvalidHash, "%q is not lower case hex", string(h))
	}
	return nil
}

// Store puts and gets JSON objects by content hash.
// Both calls honour ctx so remote implementations can be cancelled.
type Store interface {
	Put(ctx context.Context, obj interface{}) (ContentHash, error)
	Get(ctx context.Context, hash ContentHash, ptr interface{}) error
}

// Hash returns the content hash of obj and its canonical encoding.
func Hash(obj interface{}) (ContentHash, []byte, error) {
	bz, err := types.CanonicalJSON(obj)
	if err != nil {
		return "", nil, errors.Wrap(err, "encode object")
	}
	return hashBytes(bz), bz, nil
}

func hashBytes(bz []byte) ContentHash {
	return ContentHash(strings.ToLower(tmbytes.HexBytes(tmhash.Sum(bz)).String()))
}
