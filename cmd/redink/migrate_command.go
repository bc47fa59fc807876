package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/redink-ai/redink/cmd/server"
	"github.com/redink-ai/redink/pkg/service/legacy"
)

func newMigrateLegacyCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-legacy",
		Short: "导入旧版 JSON 历史记录和 YAML 服务商配置（目标表非空时跳过）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := server.NewCore(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer core.Close()

			report := core.ImportLegacy(cmd.Context())
			if report == nil {
				return fmt.Errorf("导入旧数据失败")
			}
			renderMigrateReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func renderMigrateReport(out io.Writer, report *legacy.Report) {
	fmt.Fprintf(out, "历史记录: %d\n服务商配置: %d\n失败: %d\n", report.Records, report.Providers, len(report.Failed))
	for _, id := range report.Failed {
		fmt.Fprintf(out, "  - %s\n", id)
	}
	if report.BackupDir != "" {
		fmt.Fprintf(out, "源文件已备份到: %s\n", report.BackupDir)
	}
}
