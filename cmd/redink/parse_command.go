package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/width"

	"github.com/redink-ai/redink/pkg/domain/model"
	"github.com/redink-ai/redink/pkg/service/outline"
)

// previewColumns 表格中每页内容的最大显示宽度，中文等宽字符占两列
const previewColumns = 60

func newParseCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "把大纲文本解析为页面列表，- 表示读取标准输入",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = readAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("读取大纲失败: %w", err)
			}

			pages := outline.Parse(string(data))
			if jsonOutput || !isTerminal(cmd.OutOrStdout()) {
				return writeJSON(cmd, pages)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPages(pages))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "以 JSON 输出")
	return cmd
}

func renderPages(pages []model.OutlinePage) string {
	rows := make([][]string, 0, len(pages))
	for _, p := range pages {
		rows = append(rows, []string{strconv.Itoa(p.Index), string(p.Type), abbreviate(p.Content, previewColumns)})
	}
	return renderTable([]string{"页", "类型", "内容"}, rows, []columnAlignment{alignRight, alignLeft, alignLeft})
}

// abbreviate 把多行内容压成一行，超过 limit 个显示列时截断
func abbreviate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	var b strings.Builder
	used := 0
	for _, r := range s {
		w := runeColumns(r)
		if used+w > limit {
			return b.String() + "…"
		}
		b.WriteRune(r)
		used += w
	}
	return s
}

func runeColumns(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	}
	return 1
}
