package scan

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/imagescan/internal/errors"
	"github.com/coral-mesh/imagescan/internal/logging"
	"github.com/coral-mesh/imagescan/internal/modules"
	"github.com/coral-mesh/imagescan/pkg/peimage"
)

// Section names emitted by the compiler. These are part of the binary
// format and must not change.
const (
	// ConformancesSection holds interface-conformance records.
	ConformancesSection = ".sw2prtc"

	// TypeMetadataSection holds type-descriptor records.
	TypeMetadataSection = ".sw2tymd"
)

// abortFlags is passed to Config.Abort with every diagnostic.
const abortFlags = 0

// BlockFunc receives one discovered metadata block.
type BlockFunc func(addr uintptr, size uint32)

// Request configures a single scan.
type Request struct {
	// Section is the PE section name to look for, at most 8 bytes.
	Section string

	// AddBlock is called for every module that contains Section.
	AddBlock BlockFunc
}

// Config contains the collaborators of a Scanner.
type Config struct {
	// Enumerator lists the loaded modules.
	Enumerator modules.Enumerator

	// Resolver maps module names to in-process handles.
	Resolver modules.Resolver

	// Memory returns a reader over the image mapped at base.
	Memory func(base uintptr) io.ReaderAt

	// Abort reports unrecoverable failures and does not return.
	Abort errors.AbortFunc

	// Logger for debug messages.
	Logger zerolog.Logger
}

// DefaultConfig returns the configuration for scanning the current process.
func DefaultConfig() *Config {
	logger := logging.NewWithComponent(logging.DefaultConfig(), "scan")
	return &Config{
		Enumerator: modules.NewEnumerator(),
		Resolver:   modules.NewResolver(),
		Memory:     peimage.Live,
		Abort:      errors.LoggerAbort(logger),
		Logger:     logger,
	}
}

// Scanner runs section scans over the loaded modules.
type Scanner struct {
	cfg *Config
}

// New creates a new Scanner.
func New(cfg *Config) *Scanner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Scanner{cfg: cfg}
}

// InitializeConformanceLookup delivers the conformance section of every
// loaded image to addBlock.
func (s *Scanner) InitializeConformanceLookup(addBlock BlockFunc) int {
	return s.Scan(Request{Section: ConformancesSection, AddBlock: addBlock})
}

// InitializeTypeMetadataLookup delivers the type metadata section of every
// loaded image to addBlock.
func (s *Scanner) InitializeTypeMetadataLookup(addBlock BlockFunc) int {
	return s.Scan(Request{Section: TypeMetadataSection, AddBlock: addBlock})
}

// Scan checks every loaded module for req.Section and returns the number of
// blocks delivered to req.AddBlock.
func (s *Scanner) Scan(req Request) int {
	logger := s.cfg.Logger.With().Str("section", req.Section).Logger()

	mods, err := s.cfg.Enumerator.Modules()
	if err != nil {
		s.cfg.Abort(abortFlags, fmt.Sprintf("enumerate modules: %v", err))
		return 0
	}

	logger.Debug().Int("modules", len(mods)).Msg("Scanning loaded modules")

	delivered := 0
	for _, mod := range mods {
		if s.scanModule(logger, mod, req) {
			delivered++
		}
	}

	logger.Info().
		Int("modules", len(mods)).
		Int("blocks", delivered).
		Msg("Section scan complete")

	return delivered
}

// scanModule reports whether a block was delivered for mod.
func (s *Scanner) scanModule(logger zerolog.Logger, mod modules.Module, req Request) bool {
	h, err := s.cfg.Resolver.Resolve(mod.Name)
	if err != nil {
		logger.Debug().Err(err).Str("module", mod.Name).Msg("Skipping unresolvable module")
		return false
	}
	defer h.Release()

	img := peimage.Image{Base: h.Base, Mem: s.cfg.Memory(h.Base)}
	desc, ok, err := peimage.Find(img, req.Section)
	if err != nil {
		s.cfg.Abort(abortFlags, fmt.Sprintf("inspect image %s at 0x%x: %v", mod.Name, h.Base, err))
		return false
	}
	if !ok {
		return false
	}

	if desc.Address == 0 || desc.Size == 0 {
		logger.Debug().Str("module", mod.Name).Msg("Ignoring empty section")
		return false
	}

	logger.Debug().
		Str("module", mod.Name).
		Str("address", fmt.Sprintf("0x%x", desc.Address)).
		Uint32("size", desc.Size).
		Msg("Found metadata section")

	req.AddBlock(desc.Address, desc.Size)
	return true
}
