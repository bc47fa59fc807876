/*
 * @Description: 定义了任务图片存储需要遵守的接口
 * @Author: 安知鱼
 * @Date: 2025-06-28 00:21:55
 * @LastEditTime: 2026-09-09 10:02:44
 * @LastEditors: 安知鱼
 */
package storage

import (
	"context"
	"errors"
)

// ErrFileNotFound 任务目录或文件不存在
var ErrFileNotFound = errors.New("file not found")

// TaskStorage 负责 {root}/{task_id}/{filename} 的读写，所有路径片段都会先校验
type TaskStorage interface {
	// EnsureTaskDir 创建任务目录并返回其路径
	EnsureTaskDir(taskID string) (string, error)
	// WriteImage 原子地写入图片，返回完整路径
	WriteImage(ctx context.Context, taskID, filename string, data []byte) (string, error)
	// ImagePath 返回已存在文件的路径，不存在时返回 ErrFileNotFound
	ImagePath(taskID, filename string) (string, error)
}
