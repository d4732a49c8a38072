package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ttare/ttare/internal/errors"
	"github.com/ttare/ttare/internal/feature"
	"github.com/ttare/ttare/internal/ui/table"
)

func newFeaturesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "features",
		Short: "Print list of feature flags",
		Long: `
The "features" command prints a list of supported feature flags.

To pass feature flags to ttare, set the TTARE_FEATURES environment variable
to "featureA=true,featureB=false". Specifying an unknown feature flag is an
error.

A feature can either be in alpha, beta, stable or deprecated state.
An _alpha_ feature is disabled by default and may change in arbitrary ways between releases or be removed.
A _beta_ feature is enabled by default, but still can change in minor ways or be removed.
A _stable_ feature is always enabled and cannot be disabled. The flag will be removed in a future release.
A _deprecated_ feature is always disabled and cannot be enabled. The flag will be removed in a future release.

EXIT STATUS
===========

Exit status is 0 if the command was successful, and non-zero if there was any error.
`,
		Hidden:            true,
		DisableAutoGenTag: true,
		RunE: func(_ *cobra.Command, args []string) error {
			return runFeatures(args)
		},
	}
	return cmd
}

func runFeatures(args []string) error {
	if len(args) != 0 {
		return errors.Fatal("the feature command expects no arguments")
	}

	fmt.Printf("All Feature Flags:\n")
	flags := feature.Flag.List()

	tab := table.New()
	tab.AddColumn("Name", "{{ .Name }}")
	tab.AddColumn("Type", "{{ .Type }}")
	tab.AddColumn("Default", "{{ .Default }}")
	tab.AddColumn("Description", "{{ .Description }}")

	for _, flag := range flags {
		tab.AddRow(flag)
	}
	return tab.Write(globalOptions.stdout)
}
