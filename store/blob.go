package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// BlobSize is the size of the emulated non-volatile credential area.
const BlobSize = 512

// Blob is a fixed-size byte image persisted to a single file, laid out like
// a small EEPROM. Writes are staged in memory and only become durable on Commit.
type Blob struct {
	path string
	data [BlobSize]byte
}

// OpenBlob loads the image at path. A missing or short file reads as zeroes.
func OpenBlob(path string) (*Blob, error) {
	b := &Blob{path: path}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}
	copy(b.data[:], raw)
	return b, nil
}

// Read returns a copy of n bytes starting at off.
func (b *Blob) Read(off, n int) []byte {
	out := make([]byte, n)
	copy(out, b.data[off:off+n])
	return out
}

// Write stages p at off. It does not persist until Commit.
func (b *Blob) Write(off int, p []byte) {
	copy(b.data[off:], p)
}

// Zero stages n zero bytes at off.
func (b *Blob) Zero(off, n int) {
	for i := off; i < off+n; i++ {
		b.data[i] = 0
	}
}

// Commit durably replaces the file with the staged image. The new image is
// written to a sibling temp file, synced, then renamed over the old one so a
// crash leaves either the old or the new image, never a mix.
func (b *Blob) Commit() error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".blob-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b.data[:]); err != nil {
		tmp.Close()
		return fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("commit blob: %w", err)
	}
	return nil
}
