package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/redink-ai/redink/cmd/server"
	"github.com/redink-ai/redink/pkg/domain/model"
)

func newSyncCommand(configPath *string) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sync [task-id]",
		Short: "用任务目录中的图片对账历史记录，省略 task-id 时对账全部",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			core, err := server.NewCore(ctx, *configPath)
			if err != nil {
				return err
			}
			defer core.Close()

			asJSON := jsonOutput || !isTerminal(cmd.OutOrStdout())

			if len(args) == 1 {
				result, err := core.History.SyncTask(ctx, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, result)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderSyncResults([]model.TaskSyncOutcome{{TaskID: result.TaskID, Result: result}}))
				return nil
			}

			batch, err := core.History.SyncAll(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, batch)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderSyncResults(batch.Results))
			fmt.Fprintf(out, "共 %d 个任务，成功 %d，失败 %d，无对应记录 %d\n",
				batch.TotalTasks, batch.Synced, batch.Failed, len(batch.OrphanTasks))
			if batch.Interrupted {
				fmt.Fprintln(out, "对账被中断，剩余任务未处理")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "以 JSON 输出")
	return cmd
}

func renderSyncResults(outcomes []model.TaskSyncOutcome) string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		row := []string{o.TaskID, "", "", "", o.Error}
		if r := o.Result; r != nil {
			row[1] = r.RecordID
			if r.NoRecord {
				row[1] = "(无记录)"
			}
			row[2] = strconv.Itoa(r.ImagesCount)
			row[3] = string(r.Status)
		}
		rows = append(rows, row)
	}
	return renderTable(
		[]string{"任务", "记录", "图片数", "状态", "错误"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}
