/*
 * @Description: 版本信息
 * @Author: 安知鱼
 * @Date: 2026-09-10 15:02:11
 * @LastEditTime: 2026-09-10 15:40:26
 * @LastEditors: 安知鱼
 */
package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// 构建时通过 -ldflags "-X" 注入
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// BuildInfo 包含构建信息
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
}

// vcsSetting 从嵌入的构建信息中读取 vcs.* 字段
func vcsSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

// GetVersion 返回应用版本号，未注入时回退到模块版本
func GetVersion() string {
	if Version != "dev" && Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

// GetCommit 返回短 commit hash
func GetCommit() string {
	if Commit != "unknown" && Commit != "" {
		return Commit
	}
	rev := vcsSetting("vcs.revision")
	if rev == "" {
		return "unknown"
	}
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

// GetBuildDate 返回构建时间
func GetBuildDate() string {
	if Date != "unknown" && Date != "" {
		return Date
	}
	raw := vcsSetting("vcs.time")
	if raw == "" {
		return "unknown"
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.Format("2006-01-02 15:04:05")
	}
	return raw
}

func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   GetVersion(),
		Commit:    GetCommit(),
		Date:      GetBuildDate(),
		GoVersion: runtime.Version(),
	}
}

// GetVersionString 返回形如 "v1.2.0, commit abc1234, built at ..." 的版本字符串
func GetVersionString() string {
	parts := []string{GetVersion()}
	if c := GetCommit(); c != "unknown" {
		parts = append(parts, "commit "+c)
	}
	if d := GetBuildDate(); d != "unknown" {
		parts = append(parts, "built at "+d)
	}
	return strings.Join(parts, ", ")
}
