package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/mtgview/internal/app/previews"
	"github.com/John-Robertt/mtgview/internal/preview"
)

func exportCmd(g *globalFlags) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "export <dir>",
		Short: "把本地缓存的预览导出为 PNG 文件",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd, g, nil)
			if err != nil {
				return err
			}
			defer env.Close()

			res, err := previews.Export(cmd.Context(), preview.New(env.db), args[0], overwrite, env.log)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !isTTY(os.Stdout) {
				if err := emitJSON(out, res); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "导出：dir=%s written=%d existing=%d failed=%d\n", res.Dir, res.Written, res.Existing, len(res.Failed))
			}
			if len(res.Failed) > 0 {
				return fmt.Errorf("%d 个预览导出失败", len(res.Failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "覆盖已存在的同名文件")
	return cmd
}
