package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/redink-ai/redink/cmd/server"
	"github.com/redink-ai/redink/pkg/config"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	serve := func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), configFlag)
	}

	rootCmd := &cobra.Command{
		Use:           "redink",
		Short:         "红墨 AI 图文生成服务",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", config.DefaultFilePath, "配置文件路径")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务（默认命令）",
		Args:  cobra.NoArgs,
		RunE:  serve,
	})
	rootCmd.AddCommand(newSyncCommand(&configFlag))
	rootCmd.AddCommand(newParseCommand())
	rootCmd.AddCommand(newMigrateLegacyCommand(&configFlag))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func runServe(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := server.NewApp(ctx, configPath)
	if err != nil {
		log.Printf("应用初始化失败: %v", err)
		return err
	}
	defer cleanup()
	defer app.Stop()

	app.PrintBanner()
	return app.Run(ctx)
}
