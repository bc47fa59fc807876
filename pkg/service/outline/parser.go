/*
 * @Description: 大纲文本解析
 * @Author: 安知鱼
 * @Date: 2026-08-21 11:20:45
 * @LastEditTime: 2026-09-03 22:05:17
 * @LastEditors: 安知鱼
 */
package outline

import (
	"regexp"
	"strings"

	"github.com/redink-ai/redink/pkg/domain/model"
)

// legacySeparator 是 <page> 标记出现之前使用的分页符
const legacySeparator = "---"

var (
	pageMarker = regexp.MustCompile(`(?i)<page>`)
	typeTag    = regexp.MustCompile(`^\[(\S+)\]`)
)

var pageTypeByTag = map[string]model.PageType{
	"封面": model.PageTypeCover,
	"内容": model.PageTypeContent,
	"总结": model.PageTypeSummary,
}

// Parse 把文本服务返回的大纲拆分为页面。
//
// 只要出现 <page>（不区分大小写）就按它分页，否则按 "---" 分页，两者不混用。
// 空白段落被丢弃且不占用序号，序号从 0 开始连续编排。
// 段首的 [封面] / [内容] / [总结] 决定页面类型，其余情况都是 content，标签本身保留在内容中。
func Parse(text string) []model.OutlinePage {
	var segments []string
	if pageMarker.MatchString(text) {
		segments = pageMarker.Split(text, -1)
	} else {
		segments = strings.Split(text, legacySeparator)
	}

	pages := make([]model.OutlinePage, 0, len(segments))
	for _, seg := range segments {
		content := strings.TrimSpace(seg)
		if content == "" {
			continue
		}
		pages = append(pages, model.OutlinePage{
			Index:   len(pages),
			Type:    detectType(content),
			Content: content,
		})
	}
	return pages
}

func detectType(content string) model.PageType {
	m := typeTag.FindStringSubmatch(content)
	if m == nil {
		return model.PageTypeContent
	}
	if t, ok := pageTypeByTag[m[1]]; ok {
		return t
	}
	return model.PageTypeContent
}
