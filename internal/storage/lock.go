package storage

import (
	"context"
	"fmt"
	"hash/fnv"
)

// lockStripes bounds the number of lock files; keys hashing to the same
// stripe simply serialize.
const lockStripes = 16

type keyLocks struct {
	prefix string
}

func (l keyLocks) path(k Key) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(k.String()))
	return fmt.Sprintf("%s.lock.%02d", l.prefix, h.Sum32()%lockStripes)
}

func (l keyLocks) Lock(ctx context.Context, k Key) (func(), error) {
	unlock, err := lockPath(ctx, l.path(k))
	if err != nil {
		return nil, persistErr("lock", err)
	}
	return unlock, nil
}
