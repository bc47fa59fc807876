/*
 * @Description: 文件系统路径片段校验
 * @Author: 安知鱼
 * @Date: 2026-08-24 20:11:06
 */
package pathutil

import (
	"path/filepath"
	"strings"

	"github.com/redink-ai/redink/pkg/constant"
)

// ValidateSegment 校验单个路径片段，拒绝 ".."、"."、空值以及任何包含路径分隔符的值。
// 必须在拼接文件系统路径之前调用。
func ValidateSegment(value, field string) error {
	switch {
	case value == "":
		return constant.Validationf("%s 不能为空", field)
	case value == "." || value == "..":
		return constant.Validationf("%s 非法: %q", field, value)
	case strings.ContainsAny(value, `/\`) || strings.ContainsRune(value, filepath.Separator):
		return constant.Validationf("%s 不能包含路径分隔符: %q", field, value)
	case strings.ContainsRune(value, 0):
		return constant.Validationf("%s 包含非法字符", field)
	}
	return nil
}

// SafeJoin 校验所有片段后再拼接到 root 下
func SafeJoin(root string, segments ...string) (string, error) {
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, root)
	for _, seg := range segments {
		if err := ValidateSegment(seg, "路径"); err != nil {
			return "", err
		}
		parts = append(parts, seg)
	}
	return filepath.Join(parts...), nil
}
