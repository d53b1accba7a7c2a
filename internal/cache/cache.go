package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrInvalidKey is returned for keys that were not produced by ArtifactKey
var ErrInvalidKey = errors.New("cache: invalid artifact key")

const (
	keyPrefix = "graph-"
	keyHexLen = 24
	extension = ".png"
)

// Index records when each artifact was committed
type Index interface {
	Get(key string) (time.Time, bool)
	Put(key string, created time.Time) error
	Delete(key string) error
	Clear() error
}

// ArtifactKey generates the content address of the graph for one
// (transaction, rule) pair drawn with the given render variant. The same
// triple always maps to the same file; changing the variant (image size,
// layout seed) yields a new one.
func ArtifactKey(txid, rule, variant string) string {
	hash := sha256.Sum256([]byte(txid + ":" + rule + ":" + variant))
	return keyPrefix + hex.EncodeToString(hash[:])[:keyHexLen]
}

// FileName returns the artifact file name for key
func FileName(key string) string {
	return key + extension
}

// KeyFromFile reverses FileName, rejecting anything that is not an
// artifact file name.
func KeyFromFile(name string) (string, error) {
	if len(name) != len(keyPrefix)+keyHexLen+len(extension) {
		return "", ErrInvalidKey
	}
	if name[:len(keyPrefix)] != keyPrefix || name[len(name)-len(extension):] != extension {
		return "", ErrInvalidKey
	}
	key := name[:len(name)-len(extension)]
	if _, err := hex.DecodeString(key[len(keyPrefix):]); err != nil {
		return "", ErrInvalidKey
	}
	return key, nil
}
