/*
 * @Description:
 * @Author: 安知鱼
 * @Date: 2025-06-15 13:06:01
 * @LastEditTime: 2026-09-08 09:41:22
 * @LastEditors: 安知鱼
 */
package security

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// hashCost 测试中可以调低以加快速度
var hashCost = bcrypt.DefaultCost

// HashPassword 对密码进行哈希处理
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	return string(bytes), err
}

// CheckPasswordHash 验证密码哈希
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// RandomSecret 生成 n 字节的随机十六进制字符串，用于未配置时的 JWT Secret
func RandomSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// UseMinCost 把哈希成本降到最低，只应在测试中调用
func UseMinCost() {
	hashCost = bcrypt.MinCost
}
