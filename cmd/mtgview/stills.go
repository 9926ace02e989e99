package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/mtgview/internal/bundle"
)

func stillsCmd(g *globalFlags) *cobra.Command {
	var (
		outDir string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "stills <frame-id>",
		Short: "定位某个 scene frame 的立绘骨骼资源，可选下载并分类",
		Long: `在 <stills_base_url>/<frame-id[1:4]>/<frame-id>/ 下按序号探测 .skel/.atlas/.png。

指定 --out 时把找到的文件下载到该目录，并输出资源分类结果。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd, g, nil)
			if err != nil {
				return err
			}
			defer env.Close()

			frameID := strings.TrimSuffix(strings.TrimSpace(args[0]), ".png")
			loc := &bundle.StillLocator{HTTP: env.http, BaseURL: env.eff.StillsBaseURL, Log: env.log}
			sets, err := loc.Locate(cmd.Context(), frameID)
			if err != nil {
				env.log.Warn("立绘探测中断，输出已找到的部分", zap.String("frame", frameID), zap.Error(err))
			}
			if len(sets) == 0 {
				if err != nil {
					return err
				}
				return fmt.Errorf("未找到立绘资源：%s", frameID)
			}

			out := cmd.OutOrStdout()
			jsonOut := asJSON || !isTTY(os.Stdout)
			if outDir == "" {
				if jsonOut {
					return emitJSON(out, sets)
				}
				for _, s := range sets {
					fmt.Fprintf(out, "%d (%s)\n", s.Index, s.Stem)
					for _, f := range s.Files {
						fmt.Fprintf(out, "  %s\n", f.URL)
					}
				}
				return nil
			}

			files, err := loc.Download(cmd.Context(), sets, outDir)
			if err != nil {
				return fmt.Errorf("下载立绘失败（已写入 %d 个文件）：%w", len(files), err)
			}
			return emitAssets(out, bundle.Classify(files), jsonOut)
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "下载目录（为空则只列出 URL）")
	cmd.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出")
	cmd.AddCommand(classifyCmd())
	return cmd
}

func classifyCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "classify <dir>",
		Short: "对本地目录中的立绘资源分类",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := bundle.ScanDir(args[0])
			if err != nil {
				return err
			}
			return emitAssets(cmd.OutOrStdout(), bundle.Classify(files), asJSON || !isTTY(os.Stdout))
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出")
	return cmd
}

type assetView struct {
	Kind     bundle.Kind `json:"kind"`
	Name     string      `json:"name"`
	Skeleton string      `json:"skeleton,omitempty"`
	Atlas    string      `json:"atlas,omitempty"`
	Textures []string    `json:"textures,omitempty"`
	Version  string      `json:"version,omitempty"`
	Files    []string    `json:"files,omitempty"`
	Complete bool        `json:"complete"`
}

func viewAsset(a bundle.Asset) assetView {
	v := assetView{Kind: a.Kind(), Name: a.AssetName(), Complete: true}
	switch x := a.(type) {
	case *bundle.SpineModel:
		v.Skeleton, v.Atlas, v.Textures, v.Version = x.Skeleton, x.Atlas, x.Textures, x.Version
		v.Complete = x.Complete()
	case *bundle.AudioSet:
		v.Files = x.Files
	case *bundle.Background:
		v.Files = []string{x.Image}
	}
	return v
}

func emitAssets(w io.Writer, assets []bundle.Asset, asJSON bool) error {
	views := make([]assetView, 0, len(assets))
	for _, a := range assets {
		views = append(views, viewAsset(a))
	}
	if asJSON {
		return emitJSON(w, views)
	}
	for _, v := range views {
		switch v.Kind {
		case bundle.KindSpine:
			mark := ""
			if !v.Complete {
				mark = " (不完整)"
			}
			fmt.Fprintf(w, "spine %s%s skeleton=%s atlas=%s version=%s textures=%s\n",
				v.Name, mark, v.Skeleton, v.Atlas, orDash(v.Version), strings.Join(v.Textures, ","))
		default:
			fmt.Fprintf(w, "%s %s %s\n", v.Kind, v.Name, strings.Join(v.Files, ","))
		}
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
