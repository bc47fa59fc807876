/*
 * @Description: 服务商配置解析与校验
 * @Author: 安知鱼
 * @Date: 2026-08-22 17:21:40
 * @LastEditTime: 2026-09-05 18:12:30
 * @LastEditors: 安知鱼
 */
package provider

import (
	"fmt"
	"strings"

	"github.com/redink-ai/redink/pkg/constant"
	"github.com/redink-ai/redink/pkg/domain/model"
)

var categoryLabels = map[model.ProviderCategory]string{
	model.CategoryText:  "文本生成",
	model.CategoryImage: "图片生成",
}

// Resolve 从快照中选出服务商并校验。name 为空时使用激活的服务商。
// 校验顺序：没有任何配置、没有激活项、名称不存在、缺少 API Key、类型不合法、图片接口缺少 Base URL。
func Resolve(snap *Snapshot, name string) (Settings, error) {
	label := categoryLabels[snap.Category]

	if len(snap.Providers) == 0 {
		return nil, constant.NewConfigurationError(
			fmt.Sprintf("未找到任何%s服务商配置", label),
			fmt.Sprintf("在系统设置页面添加%s服务商", label),
		)
	}

	target := name
	if target == "" {
		target = snap.Active
	}
	if target == "" {
		return nil, constant.NewConfigurationError(
			fmt.Sprintf("未找到激活的%s服务商", label),
			fmt.Sprintf("在系统设置页面激活一个%s服务商", label),
		)
	}

	cfg := snap.Find(target)
	if cfg == nil {
		return nil, constant.NewConfigurationError(
			fmt.Sprintf("未找到%s服务商配置: %s\n可用的服务商: %s", label, target, strings.Join(snap.Names(), ", ")),
			"在系统设置中选择一个可用的服务商",
		)
	}

	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, constant.NewConfigurationError(
			fmt.Sprintf("%s服务商 %s 未配置 API Key", label, target),
			"在系统设置页面编辑该服务商，填写 API Key",
		)
	}

	settings, err := FromConfig(cfg)
	if err != nil {
		return nil, constant.NewConfigurationError(
			fmt.Sprintf("%s服务商 %s 配置无效: %v", label, target, err),
			"在系统设置页面修改该服务商的类型",
		)
	}

	if settings.Type() == TypeImageAPI && settings.Conn().BaseURL == "" {
		return nil, constant.NewConfigurationError(
			fmt.Sprintf("%s服务商 %s 未配置 Base URL", label, target),
			"在系统设置页面编辑该服务商，填写 Base URL",
		)
	}

	return settings, nil
}
