// internal/infra/storage/local.go
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/redink-ai/redink/internal/pkg/pathutil"
)

// LocalStorage 实现了 TaskStorage 接口，用于处理与本机磁盘文件系统的交互。
type LocalStorage struct {
	root string
}

// NewLocalStorage 是 LocalStorage 的构造函数，root 不存在时会被创建。
func NewLocalStorage(root string) (*LocalStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("解析存储根目录失败: %w", err)
	}
	if err := os.MkdirAll(abs, os.ModePerm); err != nil {
		return nil, fmt.Errorf("无法创建存储根目录 '%s': %w", abs, err)
	}
	return &LocalStorage{root: abs}, nil
}

func (p *LocalStorage) EnsureTaskDir(taskID string) (string, error) {
	dir, err := pathutil.SafeJoin(p.root, taskID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("无法创建任务目录 '%s': %w", dir, err)
	}
	return dir, nil
}

// WriteImage 先写临时文件再重命名，对账时不会扫描到写了一半的图片
func (p *LocalStorage) WriteImage(ctx context.Context, taskID, filename string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := pathutil.ValidateSegment(filename, "filename"); err != nil {
		return "", err
	}
	dir, err := p.EnsureTaskDir(taskID)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("无法创建临时文件: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("写入图片失败: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("同步文件到磁盘失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	dst := filepath.Join(dir, filename)
	if err := os.Rename(tmpName, dst); err != nil {
		return "", fmt.Errorf("重命名图片失败: %w", err)
	}
	return dst, nil
}

func (p *LocalStorage) ImagePath(taskID, filename string) (string, error) {
	path, err := pathutil.SafeJoin(p.root, taskID, filename)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s/%s", ErrFileNotFound, taskID, filename)
	}
	return path, nil
}

// CopyFile 复制文件从 src 到 dst
func CopyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("无法打开源文件: %w", err)
	}
	defer sourceFile.Close()

	if err := os.MkdirAll(filepath.Dir(dst), os.ModePerm); err != nil {
		return err
	}
	destFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("无法创建目标文件: %w", err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return fmt.Errorf("复制文件内容失败: %w", err)
	}
	return destFile.Sync()
}
