// Package storage reads uploaded sample bytes by content hash.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no stored file exists for a hash.
var ErrNotFound = errors.New("sample file not found")

// Store opens the stored bytes of a sample. Callers close the reader.
type Store interface {
	Open(ctx context.Context, sha256 string) (io.ReadCloser, error)
}

// Dir serves samples from a local directory where each file is named by its
// sha256.
type Dir struct {
	Root string
}

func (d Dir) Open(_ context.Context, sha256 string) (io.ReadCloser, error) {
	if err := checkHash(sha256); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(d.Root, sha256))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sha256)
		}
		return nil, err
	}
	return f, nil
}

// checkHash rejects hashes that would name anything but a single entry
// directly under the root.
func checkHash(sha256 string) error {
	if sha256 == "" || sha256 == "." || sha256 == ".." || strings.ContainsAny(sha256, `/\`+"\x00") {
		return fmt.Errorf("invalid sample hash %q", sha256)
	}
	return nil
}
