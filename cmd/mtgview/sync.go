package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/mtgview/internal/app/previews"
	"github.com/John-Robertt/mtgview/internal/config"
	"github.com/John-Robertt/mtgview/internal/domain"
)

var errAtlasFailed = errors.New("存在处理失败的图集")

func syncCmd(g *globalFlags) *cobra.Command {
	var (
		maxAtlas    int
		withRecords bool
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "批量提取全部图集的场景预览并写入本地缓存",
		Long: `逐个下载 <atlas_base_url>/<prefix>-<i>.plist 与 .png，裁出每个 frame 的预览并缓存。

--max-atlas 未指定（或为 0）时按序号探测图集数量，遇到第一个不存在的序号停止。
stdout 为终端时输出摘要；否则输出一个 JSON 报告（日志与进度走 stderr）。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setup(cmd, g, func(a *config.CLIArgs) {
				if cmd.Flags().Changed("max-atlas") {
					a.MaxAtlas, a.MaxAtlasSet = maxAtlas, true
				}
			})
			if err != nil {
				return err
			}
			defer env.Close()

			progressW, interactive := pickProgressWriter()
			var obs previews.Observer
			if interactive {
				ui := newProgressUI(progressW)
				defer ui.Stop()
				obs = ui
			}

			rr, runErr := previews.Sync(cmd.Context(), env.eff, previews.Deps{
				HTTP: env.http,
				DB:   env.db,
				Log:  env.log,
			}, previews.Options{WithRecords: withRecords}, obs)
			if config.Code(runErr) != "" {
				return runErr
			}

			if err := emitSyncReport(cmd.OutOrStdout(), os.Stderr, isTTY(os.Stdout), rr); err != nil {
				return err
			}
			if interactive {
				fmt.Fprintf(progressW, "report: %s\n", filepath.Join(env.eff.DataDir, previews.ReportFile))
			}
			if runErr != nil {
				return runErr
			}
			if rr.Summary.Failed > 0 {
				return errAtlasFailed
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxAtlas, "max-atlas", 0, "处理的图集数量（0 表示自动探测）")
	cmd.Flags().BoolVar(&withRecords, "with-records", false, "报告中包含每个 frame 的记录（含 data URI）")
	return cmd
}

// emitSyncReport：终端输出摘要与失败明细；否则 stdout 只输出一个 JSON 报告，摘要写 stderr。
func emitSyncReport(stdout, stderr io.Writer, tty bool, rr domain.SyncReport) error {
	s := rr.Summary
	line := fmt.Sprintf("完成：atlases=%d processed=%d skipped=%d failed=%d frames=%d cached=%d extracted=%d missing=%d\n",
		rr.MaxAtlas, s.Processed, s.Skipped, s.Failed, s.Frames, s.Cached, s.Extracted, s.Missing,
	)
	if !tty {
		if err := emitJSON(stdout, rr); err != nil {
			return err
		}
		fmt.Fprint(stderr, line)
		return nil
	}
	fmt.Fprint(stdout, line)
	for _, a := range rr.Atlases {
		if a.ErrorCode == "" {
			continue
		}
		fmt.Fprintf(stderr, "atlas %d %s %s: %s\n", a.Index, a.Status, a.ErrorCode, a.ErrorMsg)
	}
	return nil
}
