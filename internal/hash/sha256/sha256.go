// Package sha256 names catalog snapshots by content digest.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/toolshelf/internal/catalog"
)

// Hasher serializes catalog views and digests them with SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// HashView encodes view as JSON and returns the bytes with their hex digest.
// A nil view encodes as an empty array so an empty catalog still has a
// stable name.
func (h *Hasher) HashView(view catalog.View) (catalog.Snapshot, error) {
	if view == nil {
		view = catalog.View{}
	}
	data, err := json.Marshal(view)
	if err != nil {
		return catalog.Snapshot{}, fmt.Errorf("encode view: %w", err)
	}
	sum := sha256.Sum256(data)
	return catalog.Snapshot{Digest: hex.EncodeToString(sum[:]), Data: data}, nil
}
