/*
 * @Description: ID 生成和解码服务
 * @Author: 安知鱼
 * @Date: 2025-06-17 20:38:15
 * @LastEditTime: 2026-08-23 09:40:18
 * @LastEditors: 安知鱼
 */
package idgen

import (
	"fmt"
	mrand "math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sqids/sqids-go"

	"github.com/redink-ai/redink/pkg/constant"
)

// DefaultAlphabet 是默认的字母表
const DefaultAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// EntityType 定义了不同实体在生成公共 ID 时的类型标识。
const (
	EntityTypeUser     uint64 = 1 // 用户
	EntityTypeProvider uint64 = 2 // 服务商配置
)

var (
	mu           sync.RWMutex
	sqidsEncoder *sqids.Sqids
)

// shuffleAlphabet 使用种子确定性地打乱字母表
func shuffleAlphabet(seed string) string {
	var seedInt int64
	for i, c := range seed {
		seedInt += int64(c) * int64(i+1)
	}

	r := mrand.New(mrand.NewSource(seedInt))
	alphabet := []rune(DefaultAlphabet)
	r.Shuffle(len(alphabet), func(i, j int) {
		alphabet[i], alphabet[j] = alphabet[j], alphabet[i]
	})
	return string(alphabet)
}

// InitSqidsEncoderWithSeed 使用种子初始化 Sqids 编码器，seed 为空时使用默认字母表
func InitSqidsEncoderWithSeed(seed string) error {
	alphabet := DefaultAlphabet
	if seed != "" {
		alphabet = shuffleAlphabet(seed)
	}

	s, err := sqids.New(sqids.Options{
		MinLength: 6,
		Alphabet:  alphabet,
	})
	if err != nil {
		return fmt.Errorf("初始化 Sqids 编码器失败: %w", err)
	}
	mu.Lock()
	sqidsEncoder = s
	mu.Unlock()
	return nil
}

func encoder() (*sqids.Sqids, error) {
	mu.RLock()
	s := sqidsEncoder
	mu.RUnlock()
	if s != nil {
		return s, nil
	}
	if err := InitSqidsEncoderWithSeed(""); err != nil {
		return nil, err
	}
	mu.RLock()
	defer mu.RUnlock()
	return sqidsEncoder, nil
}

// GeneratePublicID 把数据库自增ID编码为对外的公共ID
func GeneratePublicID(dbID uint, entityType uint64) (string, error) {
	s, err := encoder()
	if err != nil {
		return "", err
	}
	id, err := s.Encode([]uint64{uint64(dbID), entityType})
	if err != nil {
		return "", fmt.Errorf("编码公共ID失败: %w", err)
	}
	return id, nil
}

// DecodePublicID 解码公共 ID，并校验实体类型
func DecodePublicID(publicID string, want uint64) (uint, error) {
	s, err := encoder()
	if err != nil {
		return 0, err
	}
	numbers := s.Decode(publicID)
	if len(numbers) != 2 || numbers[1] != want {
		return 0, constant.ErrInvalidPublicID
	}
	return uint(numbers[0]), nil
}

// NewRecordID 生成历史记录ID
func NewRecordID() string {
	return uuid.NewString()
}

// NewTaskID 生成图片任务ID，同时作为任务目录名
func NewTaskID() string {
	return "task_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
