/*
 * @Description: 统一配置管理 (ini 文件 + 环境变量覆盖)
 * @Author: 安知鱼
 * @Date: 2025-06-28 00:21:55
 * @LastEditTime: 2026-09-02 10:41:12
 * @LastEditors: 安知鱼
 */
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-ini/ini"
	"github.com/spf13/viper"
)

// DefaultFilePath 是配置文件的默认位置
const DefaultFilePath = "data/conf.ini"

// 定义所有已知的配置键
var allKeys = []string{
	KeyServerPort, KeyServerDebug, KeyHistoryDir, KeyCORSOrigins, KeySyncCron,
	KeyDBType, KeyDBHost, KeyDBPort, KeyDBUser, KeyDBPassword, KeyDBName, KeyDBPath, KeyDBDebug,
	KeyRedisAddr, KeyRedisPassword, KeyRedisDB,
	KeyJWTSecret, KeyJWTExpireHours,
	KeyOutlinePromptFile, KeyOutlineRateLimit, KeyOutlineBurst,
	KeyLegacyHistoryDir, KeyLegacyProviderDir,
}

const (
	KeyServerPort    = "System.Port"
	KeyServerDebug   = "System.Debug"
	KeyHistoryDir    = "System.HistoryDir"
	KeyCORSOrigins   = "System.CORSOrigins"
	KeySyncCron      = "System.SyncCron"
	KeyDBType        = "Database.Type"
	KeyDBHost        = "Database.Host"
	KeyDBPort        = "Database.Port"
	KeyDBUser        = "Database.User"
	KeyDBPassword    = "Database.Password"
	KeyDBName        = "Database.Name"
	KeyDBPath        = "Database.Path"
	KeyDBDebug       = "Database.Debug"
	KeyRedisAddr     = "Redis.Addr"
	KeyRedisPassword = "Redis.Password"
	KeyRedisDB       = "Redis.DB"

	KeyJWTSecret      = "JWT.Secret"
	KeyJWTExpireHours = "JWT.ExpireHours"

	KeyOutlinePromptFile = "Outline.PromptFile"
	KeyOutlineRateLimit  = "Outline.RateLimit"
	KeyOutlineBurst      = "Outline.Burst"

	KeyLegacyHistoryDir  = "Legacy.HistoryDir"
	KeyLegacyProviderDir = "Legacy.ProviderDir"
)

// 内部默认值，在文件和环境变量都未提供时生效
var defaults = map[string]any{
	KeyServerPort:        "12398",
	KeyServerDebug:       false,
	KeyHistoryDir:        "history",
	KeyCORSOrigins:       "http://localhost:5173,http://localhost:3000",
	KeySyncCron:          "0 */30 * * * *",
	KeyDBType:            "sqlite",
	KeyDBName:            "redink.db",
	KeyDBPath:            "data",
	KeyRedisDB:           "0",
	KeyJWTExpireHours:    168,
	KeyOutlinePromptFile: "prompts/outline_prompt.txt",
	KeyOutlineRateLimit:  1,
	KeyOutlineBurst:      5,
	KeyLegacyHistoryDir:  "history",
	KeyLegacyProviderDir: ".",
}

type Config struct {
	vp *viper.Viper
}

// NewConfig 从默认路径加载配置
func NewConfig() (*Config, error) {
	return Load(DefaultFilePath)
}

// Load 手动加载配置：先 ini 文件，再用 REDINK_ 前缀的环境变量覆盖
func Load(filePath string) (*Config, error) {
	vp := viper.New()
	for k, v := range defaults {
		vp.SetDefault(k, v)
	}

	// --- 步骤 1: 使用 go-ini 从文件加载配置 ---
	iniCfg, err := ini.Load(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("提示: 未找到 %s，将创建默认配置文件。", filePath)
			if err := createDefaultConfigFile(filePath); err != nil {
				log.Printf("警告: 创建默认配置文件失败: %v，将仅依赖环境变量或内部默认值。", err)
			} else {
				log.Printf("✅ 已创建默认配置文件: %s", filePath)
				iniCfg, err = ini.Load(filePath)
				if err != nil {
					log.Printf("警告: 重新加载配置文件失败: %v", err)
				}
			}
		} else {
			return nil, fmt.Errorf("错误: 解析配置文件 '%s' 失败: %w", filePath, err)
		}
	}

	if iniCfg != nil {
		for _, section := range iniCfg.Sections() {
			for _, key := range section.Keys() {
				viperKey := fmt.Sprintf("%s.%s", section.Name(), key.Name())
				if section.Name() == ini.DefaultSection {
					viperKey = key.Name()
				}
				// 空值不覆盖内部默认值
				if strings.TrimSpace(key.Value()) == "" {
					continue
				}
				vp.Set(viperKey, key.Value())
			}
		}
		log.Printf("从 %s 文件加载了配置。", filePath)
	}

	// --- 步骤 2: 环境变量覆盖 ---
	applyEnvOverrides(vp)

	log.Println("✅ 配置加载器初始化完成。")
	return &Config{vp: vp}, nil
}

// NewFromMap 直接用给定的键值构建配置，主要用于测试和命令行工具
func NewFromMap(values map[string]any) *Config {
	vp := viper.New()
	for k, v := range defaults {
		vp.SetDefault(k, v)
	}
	for k, v := range values {
		vp.Set(k, v)
	}
	return &Config{vp: vp}
}

func applyEnvOverrides(vp *viper.Viper) {
	envReplacer := strings.NewReplacer(".", "_")
	envPrefix := "REDINK"

	for _, key := range allKeys {
		// 例如 REDINK_DATABASE_HOST
		envVarName := fmt.Sprintf("%s_%s", envPrefix, envReplacer.Replace(strings.ToUpper(key)))
		if value, found := os.LookupEnv(envVarName); found {
			vp.Set(key, value)
			log.Printf("发现环境变量: %s, 已覆盖配置 '%s'。", envVarName, key)
		}
	}
}

func (c *Config) GetString(key string) string {
	return c.vp.GetString(key)
}

func (c *Config) GetInt(key string) int {
	return c.vp.GetInt(key)
}

func (c *Config) GetBool(key string) bool {
	return c.vp.GetBool(key)
}

func (c *Config) GetFloat64(key string) float64 {
	return c.vp.GetFloat64(key)
}

// GetStringSlice 读取逗号分隔的列表，忽略空项
func (c *Config) GetStringSlice(key string) []string {
	raw := c.vp.GetString(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// createDefaultConfigFile 创建默认的配置文件
func createDefaultConfigFile(filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	defaultConfig := `[System]
Port = 12398
Debug = false
HistoryDir = history
CORSOrigins = http://localhost:5173,http://localhost:3000
# 定时同步任务目录，带秒字段
SyncCron = 0 */30 * * * *

[Database]
Type = sqlite
Name = redink.db
Path = data
Debug = false

# Redis 配置（可选）
# 如果不配置或留空 Addr，系统将自动使用内存缓存
[Redis]
Addr =
Password =
DB = 0

[JWT]
# 留空时启动会生成随机密钥，重启后所有令牌失效
Secret =
ExpireHours = 168

[Outline]
PromptFile = prompts/outline_prompt.txt
RateLimit = 1
Burst = 5

[Legacy]
HistoryDir = history
ProviderDir = .
`

	if err := os.WriteFile(filePath, []byte(defaultConfig), 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}

	return nil
}
