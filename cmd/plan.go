package cmd

import (
	"errors"
	"strconv"

	"kernelctl/internal/api"
	"kernelctl/internal/cli"
	"kernelctl/internal/resolution"

	"github.com/spf13/cobra"
)

// planLevel is one group of units that start together.
type planLevel struct {
	Level int                   `json:"level" yaml:"level"`
	Units []resolution.UnitInfo `json:"units" yaml:"units"`
}

func newPlanCmd() *cobra.Command {
	var (
		output    string
		manifests []string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the start order of the manifests' services",
		Long: `Applies the manifests to a private kernel and prints the units grouped by
start level: units of one level only depend on units of earlier levels and
start in parallel. A dependency cycle is reported with the units forming it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			application, err := applyOnce(cmd, manifests)
			if err != nil {
				var cycle *api.CycleError
				if errors.As(err, &cycle) {
					cmd.PrintErrf("Dependency cycle: %v\n", cycle)
				}
				return err
			}
			defer application.Shutdown()

			rc := application.Services().Context
			order, err := rc.Levels()
			if err != nil {
				return err
			}
			levels := planLevels(order, rc.Units())
			return cli.Printer{Format: format, Out: cmd.OutOrStdout()}.Print(levels, planTable(levels))
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json, yaml)")
	cmd.Flags().StringSliceVarP(&manifests, "manifests", "m", nil, "Manifest files or directories (overrides manifests.paths)")
	return cmd
}

// planLevels groups unit details by the start levels of the whole kernel.
func planLevels(order [][]string, units []resolution.UnitInfo) []planLevel {
	byName := make(map[string]resolution.UnitInfo, len(units))
	for _, u := range units {
		byName[u.Name] = u
	}

	levels := make([]planLevel, 0, len(order))
	for i, names := range order {
		l := planLevel{Level: i}
		for _, name := range names {
			if u, ok := byName[name]; ok {
				u.Level = i
				l.Units = append(l.Units, u)
			}
		}
		levels = append(levels, l)
	}
	return levels
}

func planTable(levels []planLevel) cli.Table {
	tab := cli.Table{
		Header: []string{"level", "unit", "provides", "depends on", "state"},
		Empty:  "Nothing to start",
	}
	for _, l := range levels {
		for _, u := range l.Units {
			tab.Rows = append(tab.Rows, []interface{}{
				strconv.Itoa(l.Level),
				u.Name,
				cli.FormatList(u.Provides),
				cli.FormatList(u.DependsOn),
				cli.FormatState(string(u.State)),
			})
		}
	}
	return tab
}
