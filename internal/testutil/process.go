package testutil

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/coral-mesh/imagescan/internal/modules"
)

// FakeImage is one module of a FakeProcess.
type FakeImage struct {
	Name string
	Base uintptr
	Data []byte
}

// FakeProcess provides an in-memory set of loaded modules. It implements
// modules.Enumerator and modules.Resolver and serves image memory by base.
type FakeProcess struct {
	mu     sync.RWMutex
	images []*FakeImage

	// EnumerateErr is returned by Modules when set.
	EnumerateErr error
	// Unresolvable lists module names that fail to resolve.
	Unresolvable map[string]bool

	resolved []string
	released []string
}

// NewFakeProcess creates a fake process with the given images in load order.
func NewFakeProcess(images ...*FakeImage) *FakeProcess {
	return &FakeProcess{
		images:       images,
		Unresolvable: make(map[string]bool),
	}
}

// Add appends an image to the module list.
func (p *FakeProcess) Add(img *FakeImage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.images = append(p.images, img)
}

// Modules returns the images in load order.
func (p *FakeProcess) Modules() ([]modules.Module, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.EnumerateErr != nil {
		return nil, p.EnumerateErr
	}

	mods := make([]modules.Module, 0, len(p.images))
	for _, img := range p.images {
		mods = append(mods, modules.Module{Base: img.Base, Name: img.Name})
	}
	return mods, nil
}

// Resolve looks up an image by name; the empty name is the first image.
func (p *FakeProcess) Resolve(name string) (modules.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resolved = append(p.resolved, name)

	if p.Unresolvable[name] {
		return modules.Handle{}, fmt.Errorf("module not loaded: %s", name)
	}

	for i, img := range p.images {
		if img.Name == name || (name == "" && i == 0) {
			return modules.NewHandle(img.Base, func() {
				p.mu.Lock()
				p.released = append(p.released, name)
				p.mu.Unlock()
			}), nil
		}
	}
	return modules.Handle{}, fmt.Errorf("module not loaded: %s", name)
}

// Memory returns a reader over the image loaded at base.
func (p *FakeProcess) Memory(base uintptr) io.ReaderAt {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, img := range p.images {
		if img.Base == base {
			return bytes.NewReader(img.Data)
		}
	}
	return bytes.NewReader(nil)
}

// ReadAt reads process memory at an absolute address.
func (p *FakeProcess) ReadAt(buf []byte, addr int64) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, img := range p.images {
		start := int64(img.Base)
		if addr >= start && addr < start+int64(len(img.Data)) {
			n := copy(buf, img.Data[addr-start:])
			if n < len(buf) {
				return n, io.EOF
			}
			return n, nil
		}
	}
	return 0, io.EOF
}

// Resolved returns the names passed to Resolve, in call order.
func (p *FakeProcess) Resolved() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.resolved...)
}

// Released returns the names of handles released, in call order.
func (p *FakeProcess) Released() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.released...)
}
