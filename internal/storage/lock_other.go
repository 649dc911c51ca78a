//go:build !unix

package storage

import (
	"context"
	"os"
)

// Without flock the ledger is only safe for a single process.
func lockPath(ctx context.Context, _ string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return func() {}, nil
}

func flockFile(*os.File) (func(), error) { return func() {}, nil }
