package helpers

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/imagescan/internal/registry"
)

// KindAll selects every metadata kind.
const KindAll = "all"

// AddFormatFlag adds a standard --format/-o flag to a command.
// An empty default leaves the choice to the config file.
func AddFormatFlag(cmd *cobra.Command, formatVar *string, supportedFormats []OutputFormat) {
	formatNames := make([]string, len(supportedFormats))
	for i, f := range supportedFormats {
		formatNames[i] = string(f)
	}

	description := fmt.Sprintf("Output format (%s)", strings.Join(formatNames, ", "))
	cmd.Flags().StringVarP(formatVar, "format", "o", "", description)

	_ = cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return formatNames, cobra.ShellCompDirectiveNoFileComp
	})
}

// AddKindFlag adds a standard --kind/-k flag for metadata kind selection.
func AddKindFlag(cmd *cobra.Command, kindVar *string) {
	names := []string{KindAll}
	for _, k := range registry.Kinds {
		names = append(names, string(k))
	}

	cmd.Flags().StringVarP(kindVar, "kind", "k", "", fmt.Sprintf("Metadata kind to scan (%s)", strings.Join(names, ", ")))

	_ = cmd.RegisterFlagCompletionFunc("kind", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return names, cobra.ShellCompDirectiveNoFileComp
	})
}

// ResolveKinds turns a --kind value into kinds. An empty value keeps fallback.
func ResolveKinds(kind string, fallback []registry.Kind) ([]registry.Kind, error) {
	switch kind {
	case "":
		return fallback, nil
	case KindAll:
		return registry.Kinds, nil
	}

	k, err := registry.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	return []registry.Kind{k}, nil
}

// ValidateFormat checks if the format is in the supported list.
func ValidateFormat(format string, supported []OutputFormat) error {
	for _, s := range supported {
		if format == string(s) {
			return nil
		}
	}

	supportedNames := make([]string, len(supported))
	for i, s := range supported {
		supportedNames[i] = string(s)
	}

	return fmt.Errorf("unsupported format %q, must be one of: %s",
		format, strings.Join(supportedNames, ", "))
}
