package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"tracelyse/internal/plugins"
)

type pluginInfo struct {
	Name        string `json:"name"`
	Manual      bool   `json:"manual"`
	Description string `json:"description"`
}

func newPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List the built-in plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("output")
			p, err := newPrinter(format, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			reg, err := plugins.NewRegistry()
			if err != nil {
				return err
			}

			var infos []pluginInfo
			for _, d := range reg.Descriptors() {
				infos = append(infos, pluginInfo{Name: d.Name, Manual: d.Manual, Description: d.Summary()})
			}
			if p.format == "json" {
				return p.json(infos)
			}
			rows := make([][]string, 0, len(infos))
			for _, info := range infos {
				rows = append(rows, []string{info.Name, strconv.FormatBool(info.Manual), info.Description})
			}
			return p.table([]string{"NAME", "MANUAL", "DESCRIPTION"}, rows)
		},
	}
	cmd.Flags().String("output", "table", "output format: table or json")
	return cmd
}
