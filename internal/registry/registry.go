// Package registry collects the metadata blocks discovered by a scan.
package registry

import (
	"fmt"
	"io"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/coral-mesh/imagescan/internal/safe"
	"github.com/coral-mesh/imagescan/internal/scan"
)

// Kind identifies a category of compiler-emitted metadata.
type Kind string

const (
	// KindConformances are interface-conformance records.
	KindConformances Kind = "conformances"
	// KindTypeMetadata are type-descriptor records.
	KindTypeMetadata Kind = "types"
)

// Kinds lists every kind in scan order.
var Kinds = []Kind{KindConformances, KindTypeMetadata}

// ParseKind converts a command-line value to a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown metadata kind %q", s)
}

// Section returns the PE section name that holds blocks of this kind.
func (k Kind) Section() string {
	if k == KindTypeMetadata {
		return scan.TypeMetadataSection
	}
	return scan.ConformancesSection
}

// Block is one discovered metadata block.
type Block struct {
	Kind    Kind    `json:"kind"`
	Address uintptr `json:"address"`
	Size    uint32  `json:"size"`

	// Fingerprint is the xxh3 hash of the block's bytes, or zero when the
	// registry has no memory reader.
	Fingerprint uint64 `json:"fingerprint,omitempty"`
}

// Registry stores blocks per kind in delivery order.
type Registry struct {
	mu     sync.RWMutex
	mem    io.ReaderAt
	blocks map[Kind][]Block
	errs   []error
}

// Option configures a Registry.
type Option func(*Registry)

// WithReader enables fingerprints, reading block bytes from mem at their
// absolute addresses.
func WithReader(mem io.ReaderAt) Option {
	return func(r *Registry) {
		r.mem = mem
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{blocks: make(map[Kind][]Block)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Adder returns a callback that records blocks of kind.
func (r *Registry) Adder(kind Kind) scan.BlockFunc {
	return func(addr uintptr, size uint32) {
		r.Add(kind, addr, size)
	}
}

// Add records one block.
func (r *Registry) Add(kind Kind, addr uintptr, size uint32) {
	b := Block{Kind: kind, Address: addr, Size: size}

	var fpErr error
	if r.mem != nil {
		b.Fingerprint, fpErr = fingerprint(r.mem, addr, size)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks[kind] = append(r.blocks[kind], b)
	if fpErr != nil {
		r.errs = append(r.errs, fpErr)
	}
}

// Blocks returns the blocks of kind in delivery order.
func (r *Registry) Blocks(kind Kind) []Block {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Block(nil), r.blocks[kind]...)
}

// All returns every block, grouped by kind in Kinds order.
func (r *Registry) All() []Block {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Block
	for _, k := range Kinds {
		out = append(out, r.blocks[k]...)
	}
	return out
}

// Errors returns the fingerprint read failures seen so far.
func (r *Registry) Errors() []error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]error(nil), r.errs...)
}

func fingerprint(mem io.ReaderAt, addr uintptr, size uint32) (uint64, error) {
	off, ok := safe.UintptrToOffset(addr)
	if !ok {
		return 0, fmt.Errorf("block address 0x%x out of range", addr)
	}
	buf := make([]byte, size)
	if _, err := mem.ReadAt(buf, off); err != nil {
		return 0, fmt.Errorf("read block at 0x%x: %w", addr, err)
	}
	return xxh3.Hash(buf), nil
}
