package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/mtgview/internal/masterdata"
	"github.com/John-Robertt/mtgview/internal/preview"
)

func cacheCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "查看或清理本地缓存",
	}
	cmd.AddCommand(cacheStatsCmd(g))
	cmd.AddCommand(cacheClearCmd(g))
	return cmd
}

type cacheStats struct {
	DB         string `json:"db"`
	Previews   int    `json:"previews"`
	Characters bool   `json:"characters"`
	Scenes     bool   `json:"scenes"`
}

func cacheStatsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "输出缓存条目统计",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setup(cmd, g, nil)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := cmd.Context()
			st := cacheStats{DB: env.eff.DBPath()}
			if st.Previews, err = preview.New(env.db).Count(ctx); err != nil {
				return err
			}
			md := masterdata.NewStore(env.db)
			for _, k := range []masterdata.Kind{masterdata.KindCharacters, masterdata.KindScenes} {
				_, _, ok, err := md.Load(ctx, k)
				if err != nil {
					return err
				}
				if k == masterdata.KindCharacters {
					st.Characters = ok
				} else {
					st.Scenes = ok
				}
			}
			return emitJSON(cmd.OutOrStdout(), st)
		},
	}
}

func cacheClearCmd(g *globalFlags) *cobra.Command {
	var previewsOnly, dataOnly bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "清空预览缓存与 master data 缓存",
		Long:  "默认两者都清空；--previews / --data 只清其中一种。",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setup(cmd, g, nil)
			if err != nil {
				return err
			}
			defer env.Close()

			all := !previewsOnly && !dataOnly
			ctx := cmd.Context()
			var errs []error
			if all || previewsOnly {
				if err := preview.New(env.db).Clear(ctx); err != nil {
					errs = append(errs, fmt.Errorf("清空预览缓存失败：%w", err))
				} else {
					env.log.Info("已清空预览缓存")
				}
			}
			if all || dataOnly {
				if err := env.masterData().Clear(ctx); err != nil {
					errs = append(errs, fmt.Errorf("清空 master data 缓存失败：%w", err))
				} else {
					env.log.Info("已清空 master data 缓存", zap.String("db", env.eff.DBPath()))
				}
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().BoolVar(&previewsOnly, "previews", false, "只清空预览缓存")
	cmd.Flags().BoolVar(&dataOnly, "data", false, "只清空 master data 缓存")
	cmd.MarkFlagsMutuallyExclusive("previews", "data")
	return cmd
}
