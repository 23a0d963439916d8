package cli

import (
	"fmt"
	"io"

	"github.com/coral-mesh/imagescan/internal/cli/helpers"
	"github.com/coral-mesh/imagescan/internal/registry"
	"github.com/coral-mesh/imagescan/pkg/peimage"
)

// Report is the result of one scan or inspection.
type Report struct {
	ScanID   string                  `json:"scan_id"`
	Target   string                  `json:"target"`
	PID      int32                   `json:"pid,omitempty"`
	Process  string                  `json:"process,omitempty"`
	Sections []peimage.SectionHeader `json:"sections,omitempty"`
	Counts   map[registry.Kind]int   `json:"counts"`
	Blocks   []registry.Block        `json:"blocks"`
}

type blockRow struct {
	Kind        string `header:"KIND"`
	Section     string `header:"SECTION"`
	Address     string `header:"ADDRESS"`
	Size        uint32 `header:"SIZE"`
	Fingerprint string `header:"FINGERPRINT"`
}

type sectionRow struct {
	Name           string `header:"NAME"`
	VirtualAddress string `header:"RVA"`
	VirtualSize    uint32 `header:"SIZE"`
}

func (r *Report) blockRows() []blockRow {
	rows := make([]blockRow, 0, len(r.Blocks))
	for _, b := range r.Blocks {
		fp := "-"
		if b.Fingerprint != 0 {
			fp = fmt.Sprintf("%016x", b.Fingerprint)
		}
		rows = append(rows, blockRow{
			Kind:        string(b.Kind),
			Section:     b.Kind.Section(),
			Address:     fmt.Sprintf("0x%x", b.Address),
			Size:        b.Size,
			Fingerprint: fp,
		})
	}
	return rows
}

func (r *Report) sectionRows() []sectionRow {
	rows := make([]sectionRow, 0, len(r.Sections))
	for _, s := range r.Sections {
		rows = append(rows, sectionRow{
			Name:           s.Name,
			VirtualAddress: fmt.Sprintf("0x%08x", s.VirtualAddress),
			VirtualSize:    s.VirtualSize,
		})
	}
	return rows
}

// writeReport renders r. JSON carries the whole report; CSV only the blocks.
func writeReport(w io.Writer, format helpers.OutputFormat, r *Report) error {
	formatter, err := helpers.NewFormatter(format)
	if err != nil {
		return err
	}

	switch format {
	case helpers.FormatJSON:
		return formatter.Format(r, w)
	case helpers.FormatCSV:
		return formatter.Format(r.blockRows(), w)
	}

	if _, err := fmt.Fprintf(w, "Scan %s\nTarget: %s\n", r.ScanID, r.Target); err != nil {
		return err
	}
	if r.PID != 0 {
		if _, err := fmt.Fprintf(w, "Process: %s (pid %d)\n", r.Process, r.PID); err != nil {
			return err
		}
	}

	for _, k := range registry.Kinds {
		n, ok := r.Counts[k]
		if !ok {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s (%s): %d block(s)\n", k, k.Section(), n); err != nil {
			return err
		}
	}

	if len(r.Sections) > 0 {
		if _, err := fmt.Fprintln(w, "\nSections:"); err != nil {
			return err
		}
		if err := formatter.Format(r.sectionRows(), w); err != nil {
			return err
		}
	}

	if len(r.Blocks) == 0 {
		_, err := fmt.Fprintln(w, "\nNo metadata sections found.")
		return err
	}
	if _, err := fmt.Fprintln(w, "\nMetadata blocks:"); err != nil {
		return err
	}
	return formatter.Format(r.blockRows(), w)
}

// resolveFormat picks the --format flag over the config value.
func resolveFormat(flagValue, configValue string) (helpers.OutputFormat, error) {
	format := flagValue
	if format == "" {
		format = configValue
	}
	if err := helpers.ValidateFormat(format, helpers.SupportedFormats); err != nil {
		return "", err
	}
	return helpers.OutputFormat(format), nil
}
