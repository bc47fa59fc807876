/*
 * @Description: 使用 imaging 为任务图片生成 JPEG 缩略图
 * @Author: 安知鱼
 * @Date: 2025-07-12 16:09:46
 * @LastEditTime: 2026-09-10 14:36:20
 * @LastEditors: 安知鱼
 */
package thumbnail

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/redink-ai/redink/internal/pkg/pathutil"
)

const (
	// Prefix 缩略图文件名前缀，对账扫描时会跳过
	Prefix = "thumb_"
	// DefaultWidth 缩略图宽度，高度按比例计算
	DefaultWidth = 400
	// DefaultQuality JPEG 压缩质量
	DefaultQuality = 80
)

// Generator 为任务目录中的图片生成缩略图
type Generator struct {
	width   int
	quality int
}

// NewGenerator 是 Generator 的构造函数，width/quality 非正数时使用默认值
func NewGenerator(width, quality int) *Generator {
	if width <= 0 {
		width = DefaultWidth
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Generator{width: width, quality: quality}
}

// Name 返回图片对应的缩略图文件名，例如 0.png -> thumb_0.jpg
func Name(filename string) string {
	return Prefix + strings.TrimSuffix(filename, filepath.Ext(filename)) + ".jpg"
}

// Ensure 返回缩略图路径，不存在或比原图旧时重新生成
func (g *Generator) Ensure(ctx context.Context, taskDir, filename string) (string, error) {
	if err := pathutil.ValidateSegment(filename, "filename"); err != nil {
		return "", err
	}
	if strings.HasPrefix(filename, Prefix) {
		return filepath.Join(taskDir, filename), nil
	}

	src := filepath.Join(taskDir, filename)
	srcInfo, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("读取原图失败: %w", err)
	}

	dst := filepath.Join(taskDir, Name(filename))
	if dstInfo, err := os.Stat(dst); err == nil && !dstInfo.ModTime().Before(srcInfo.ModTime()) {
		return dst, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("使用 imaging 库打开或解码图片 '%s' 失败: %w", filename, err)
	}
	if img.Bounds().Dx() > g.width {
		img = imaging.Resize(img, g.width, 0, imaging.Lanczos)
	}

	if err := g.writeJPEG(img, taskDir, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// writeJPEG 先写入同目录下的临时文件再重命名。临时文件带缩略图前缀，对账扫描不会把它当成页面图片。
func (g *Generator) writeJPEG(img image.Image, dir, dst string) error {
	f, err := os.CreateTemp(dir, Prefix+"*.tmp")
	if err != nil {
		return fmt.Errorf("创建缩略图临时文件失败: %w", err)
	}
	tmp := f.Name()
	if err := imaging.Encode(f, img, imaging.JPEG, imaging.JPEGQuality(g.quality)); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("使用 imaging 库保存缩略图失败: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("使用 imaging 库保存缩略图失败: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("重命名缩略图失败: %w", err)
	}
	return nil
}
