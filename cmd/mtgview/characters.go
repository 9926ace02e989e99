package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func charactersCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "characters",
		Short: "列出 master data 中的全部角色",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setup(cmd, g, nil)
			if err != nil {
				return err
			}
			defer env.Close()

			list, err := env.library().Characters(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON || !isTTY(os.Stdout) {
				return emitJSON(out, list)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSCENES\tPROFILE")
			for _, c := range list {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", c.ID, c.Name, c.SceneLinks, c.ProfileImageURL)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出")
	return cmd
}
