/*
 * @Description:
 * @Author: 安知鱼
 * @Date: 2025-07-12 17:41:31
 * @LastEditTime: 2026-08-22 10:20:03
 * @LastEditors: 安知鱼
 */
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap 是一个自定义类型，用于处理以文本形式存储的 JSON 字段。
// 它实现了 database/sql/driver.Valuer 和 database/sql.Scanner 接口。
type JSONMap map[string]interface{}

// Value 以字符串写入，避免 SQLite 把 []byte 存成 BLOB。
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 实现了 sql.Scanner 接口，用于从数据库读取数据到 JSONMap。
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var byteSlice []byte
	switch v := value.(type) {
	case []byte:
		byteSlice = v
	case string:
		byteSlice = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSONMap scan: %T", value)
	}
	if len(byteSlice) == 0 {
		*j = nil
		return nil
	}
	return json.Unmarshal(byteSlice, j)
}
