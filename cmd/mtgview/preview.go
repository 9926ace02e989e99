package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/mtgview/internal/atlas"
	"github.com/John-Robertt/mtgview/internal/config"
	"github.com/John-Robertt/mtgview/internal/infra/fsx"
	"github.com/John-Robertt/mtgview/internal/infra/imgx"
)

// previewCmd 现场提取单个 frame（不读写预览缓存）。
// 不带 --out 时把 data URI 写到 stdout；带 --out 时写成 PNG 文件。
func previewCmd(g *globalFlags) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "preview <atlas-index> <frame-id>",
		Short: "从指定图集提取单个 frame 的预览",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[0])
			if err != nil || idx < 1 {
				return fmt.Errorf("图集序号必须是正整数：%q", args[0])
			}
			env, err := setup(cmd, g, nil)
			if err != nil {
				return err
			}
			defer env.Close()
			if env.eff.AtlasBaseURL == "" {
				return &config.Error{Code: config.ErrCodeInvalid, Path: env.eff.ConfigFile, Err: errors.New("atlas_base_url 未配置")}
			}

			src := &atlas.Source{HTTP: env.http, BaseURL: env.eff.AtlasBaseURL, Prefix: env.eff.AtlasPrefix}
			uri, err := src.ExtractFrame(cmd.Context(), idx, args[1])
			if atlas.IsAbsent(err) {
				return fmt.Errorf("图集 %d 不存在", idx)
			}
			if err != nil {
				return err
			}

			if outPath == "" {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), uri)
				return err
			}
			_, data, err := imgx.DecodeDataURI(uri)
			if err != nil {
				return err
			}
			if err := fsx.WriteFileAtomic(filepath.Dir(outPath), filepath.Base(outPath), data); err != nil {
				return fmt.Errorf("写入 %s 失败：%w", outPath, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "已写入 %s（%d 字节）\n", outPath, len(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "写入 PNG 文件而不是输出 data URI")
	return cmd
}
