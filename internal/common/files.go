package common

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint identifies a blob by content. Two identical records from a
// replayed dump share a fingerprint.
func Fingerprint(b []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(b))
}

// Sha256 returns the hex sha256 of b.
func Sha256(b []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(b))
}

func Sha256OfFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	stat, _ := f.Stat()
	h := sha256.New()
	_, err = io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), stat.Size(), nil
}

// Deduper remembers fingerprints it has seen.
type Deduper struct {
	seen map[uint64]struct{}
}

func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[uint64]struct{})}
}

// Seen reports whether b was offered before and remembers it.
func (d *Deduper) Seen(b []byte) bool {
	h := xxhash.Sum64(b)
	if _, ok := d.seen[h]; ok {
		return true
	}
	d.seen[h] = struct{}{}
	return false
}
