package cli

import (
	stderrors "errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/coral-mesh/imagescan/internal/cli/helpers"
	"github.com/coral-mesh/imagescan/internal/errors"
	"github.com/coral-mesh/imagescan/internal/modules"
	"github.com/coral-mesh/imagescan/internal/registry"
	"github.com/coral-mesh/imagescan/internal/safe"
	"github.com/coral-mesh/imagescan/internal/scan"
	"github.com/coral-mesh/imagescan/pkg/peimage"
)

// maxImageFileSize is the largest image a 32-bit SizeOfImage can describe.
const maxImageFileSize = 4 << 30

// fileModules presents one mapped image file as the only loaded module.
type fileModules struct {
	m *peimage.Mapped
}

func (f fileModules) Modules() ([]modules.Module, error) {
	return []modules.Module{{Base: f.m.Image().Base, Name: f.m.Path}}, nil
}

func (f fileModules) Resolve(name string) (modules.Handle, error) {
	if name != f.m.Path {
		return modules.Handle{}, fmt.Errorf("module not mapped: %s", name)
	}
	return modules.NewHandle(f.m.Image().Base, nil), nil
}

func (f fileModules) Memory(base uintptr) io.ReaderAt {
	return f.m.Image().Mem
}

func newInspectCmd(opts *globalOptions) *cobra.Command {
	var (
		format       string
		kind         string
		listSections bool
	)

	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Inspect the metadata sections of a PE file on disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
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

			raw, err := safe.ReadFile(args[0], &safe.ReadOptions{MaxSize: maxImageFileSize, AllowSymlinks: true})
			if err != nil {
				return fmt.Errorf("read image file: %w", err)
			}
			mapped, err := peimage.Map(args[0], raw)
			if err != nil {
				return err
			}
			logger.Debug().
				Str("path", mapped.Path).
				Str("image_base", fmt.Sprintf("0x%x", mapped.PreferredBase)).
				Int("size", mapped.Size()).
				Msg("Mapped image file")

			var regOpts []registry.Option
			if cfg.Fingerprint {
				regOpts = append(regOpts, registry.WithReader(mapped))
			}
			reg := registry.New(regOpts...)

			files := fileModules{m: mapped}
			sc := scan.New(&scan.Config{
				Enumerator: files,
				Resolver:   files,
				Memory:     files.Memory,
				Abort:      errors.PanicAbort,
				Logger:     logger,
			})

			// A file is not part of a running runtime; report a broken image as an error.
			defer func() {
				if r := recover(); r != nil {
					var aborted errors.Aborted
					if e, ok := r.(error); ok && stderrors.As(e, &aborted) {
						err = fmt.Errorf("inspect %s: %w", args[0], aborted)
						return
					}
					panic(r)
				}
			}()
			counts := runScans(sc, reg, kinds)
			logFingerprintErrors(logger, reg)

			report := &Report{
				ScanID: uuid.New().String(),
				Target: mapped.Path,
				Counts: counts,
				Blocks: reg.All(),
			}
			if listSections {
				report.Sections, err = peimage.Sections(mapped.Image())
				if err != nil {
					return err
				}
			}
			return writeReport(cmd.OutOrStdout(), outFormat, report)
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.SupportedFormats)
	helpers.AddKindFlag(cmd, &kind)
	cmd.Flags().BoolVarP(&listSections, "sections", "s", false, "Also list every section of the image")

	return cmd
}
