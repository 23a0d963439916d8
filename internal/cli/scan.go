package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/spf13/cobra"

	"github.com/coral-mesh/imagescan/internal/cli/helpers"
	"github.com/coral-mesh/imagescan/internal/errors"
	"github.com/coral-mesh/imagescan/internal/modules"
	"github.com/coral-mesh/imagescan/internal/registry"
	"github.com/coral-mesh/imagescan/internal/scan"
	"github.com/coral-mesh/imagescan/pkg/peimage"
)

// scanEnv is the process the scan command inspects.
type scanEnv struct {
	supported  bool
	pid        int32
	enumerator modules.Enumerator
	resolver   modules.Resolver
	memory     func(base uintptr) io.ReaderAt
	// reader reads process memory at absolute addresses.
	reader io.ReaderAt
}

func defaultScanEnv() scanEnv {
	return scanEnv{
		supported:  modules.Supported,
		pid:        int32(os.Getpid()),
		enumerator: modules.NewEnumerator(),
		resolver:   modules.NewResolver(),
		memory:     peimage.Live,
		reader:     peimage.Live(0),
	}
}

func newScanCmd(opts *globalOptions, envFn func() scanEnv) *cobra.Command {
	var (
		format string
		kind   string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the images loaded into this process",
		Long: `Enumerate every image loaded into the running process and report its
metadata sections. Only images loaded before the scan starts are seen.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := envFn()
			if !env.supported {
				return fmt.Errorf("live scan is not supported on this platform: %w (use \"imagescan inspect <file>\")", modules.ErrUnsupported)
			}

			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			kinds, err := helpers.ResolveKinds(kind, cfg.ScanKinds())
			if err != nil {
				return err
			}
			outFormat, err := resolveFormat(format, cfg.Output)
			if err != nil {
				return err
			}

			scanID := uuid.New().String()
			logger = logger.With().Str("scan_id", scanID).Logger()

			var regOpts []registry.Option
			if cfg.Fingerprint {
				regOpts = append(regOpts, registry.WithReader(env.reader))
			}
			reg := registry.New(regOpts...)

			sc := scan.New(&scan.Config{
				Enumerator: env.enumerator,
				Resolver:   env.resolver,
				Memory:     env.memory,
				Abort:      errors.LoggerAbort(logger),
				Logger:     logger,
			})
			counts := runScans(sc, reg, kinds)
			logFingerprintErrors(logger, reg)

			report := &Report{
				ScanID:  scanID,
				Target:  fmt.Sprintf("pid %d", env.pid),
				PID:     env.pid,
				Process: processName(logger, env.pid),
				Counts:  counts,
				Blocks:  reg.All(),
			}
			return writeReport(cmd.OutOrStdout(), outFormat, report)
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.SupportedFormats)
	helpers.AddKindFlag(cmd, &kind)

	return cmd
}

// runScans runs one scan per kind, in order, and returns the number of
// blocks recorded for each kind.
func runScans(sc *scan.Scanner, reg *registry.Registry, kinds []registry.Kind) map[registry.Kind]int {
	counts := make(map[registry.Kind]int, len(kinds))
	for _, k := range kinds {
		switch k {
		case registry.KindConformances:
			sc.InitializeConformanceLookup(reg.Adder(k))
		case registry.KindTypeMetadata:
			sc.InitializeTypeMetadataLookup(reg.Adder(k))
		}
		counts[k] = len(reg.Blocks(k))
	}
	return counts
}

func logFingerprintErrors(logger zerolog.Logger, reg *registry.Registry) {
	for _, err := range reg.Errors() {
		logger.Warn().Err(err).Msg("Failed to fingerprint block")
	}
}

// processName returns the executable name of pid, or "" if unavailable.
func processName(logger zerolog.Logger, pid int32) string {
	p, err := process.NewProcess(pid)
	if err != nil {
		logger.Debug().Err(err).Int32("pid", pid).Msg("Failed to open process")
		return ""
	}
	name, err := p.Name()
	if err != nil {
		logger.Debug().Err(err).Int32("pid", pid).Msg("Failed to read process name")
		return ""
	}
	return name
}
