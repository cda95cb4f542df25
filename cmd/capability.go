package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"kernelctl/internal/app"
	"kernelctl/internal/capability"
	"kernelctl/internal/cli"
	"kernelctl/internal/resource"

	"github.com/spf13/cobra"
)

// capabilityEntry is a live registration together with the state of the
// unit providing it.
type capabilityEntry struct {
	capability.Info `yaml:",inline"`
	State           string `json:"state" yaml:"state"`
}

func newCapabilityCmd() *cobra.Command {
	var (
		output    string
		manifests []string
	)

	cmd := &cobra.Command{
		Use:   "capability",
		Short: "Inspect capability registrations",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the capabilities registered by the manifests",
		Long: `Applies the manifests to a private kernel, lists every live capability
registration with its provider address, multiplicity and unit state, then
stops the kernel again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			application, err := applyOnce(cmd, manifests)
			if err != nil {
				return err
			}
			defer application.Shutdown()

			entries := listCapabilities(application.Services())
			return cli.Printer{Format: format, Out: cmd.OutOrStdout()}.Print(entries, capabilityTable(entries))
		},
	}

	cmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json, yaml)")
	cmd.PersistentFlags().StringSliceVarP(&manifests, "manifests", "m", nil, "Manifest files or directories (overrides manifests.paths)")
	cmd.AddCommand(list)
	return cmd
}

// applyOnce creates an application and applies the manifests once.
func applyOnce(cmd *cobra.Command, manifests []string) (*app.Application, error) {
	cfg := app.NewConfig(configPath, debug)
	cfg.ManifestPaths = manifests

	application, err := app.NewApplication(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := application.Apply(ctx); err != nil {
		return nil, errors.Join(err, application.Shutdown())
	}
	return application, nil
}

func listCapabilities(s *app.Services) []capabilityEntry {
	infos := s.Registry.List()
	entries := make([]capabilityEntry, 0, len(infos))
	for _, info := range infos {
		state, _ := s.Context.State(resource.UnitName(info.Provider, info.Capability))
		entries = append(entries, capabilityEntry{Info: info, State: string(state)})
	}
	return entries
}

func capabilityTable(entries []capabilityEntry) cli.Table {
	tab := cli.Table{
		Header: []string{"name", "provider", "multiple", "type", "state"},
		Empty:  "No capabilities registered",
	}
	for _, e := range entries {
		tab.Rows = append(tab.Rows, []interface{}{
			e.Name,
			e.Provider,
			strconv.FormatBool(e.AllowMultiple),
			e.ValueType,
			cli.FormatState(e.State),
		})
	}
	return tab
}
