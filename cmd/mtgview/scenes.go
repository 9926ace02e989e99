package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/mtgview/internal/app"
)

func scenesCmd(g *globalFlags) *cobra.Command {
	var (
		adult  bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "scenes <character-id>",
		Short: "按 scene 链展开某个角色的播放列表",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("角色 id 必须是整数：%q", args[0])
			}
			env, err := setup(cmd, g, nil)
			if err != nil {
				return err
			}
			defer env.Close()

			list, err := env.library().Playlist(cmd.Context(), id, adult)
			if errors.Is(err, app.ErrCharacterNotFound) {
				return err
			}
			if err != nil {
				return fmt.Errorf("读取 master data 失败：%w", err)
			}
			out := cmd.OutOrStdout()
			if asJSON || !isTTY(os.Stdout) {
				return emitJSON(out, list)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tID\tKIZUNA\tADULT\tTITLE")
			for i, e := range list {
				fmt.Fprintf(tw, "%d\t%d\t%d\t%t\t%s\n", i+1, e.ID, e.KizunaRank, e.IsAdult, e.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&adult, "adult", false, "包含成人场景")
	cmd.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出")
	return cmd
}
