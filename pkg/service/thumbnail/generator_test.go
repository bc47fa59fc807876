package thumbnail

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.NRGBA{R: 255, A: 255})
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestName(t *testing.T) {
	cases := map[string]string{
		"0.png":     "thumb_0.jpg",
		"10.jpeg":   "thumb_10.jpg",
		"cover.jpg": "thumb_cover.jpg",
	}
	for in, want := range cases {
		if got := Name(in); got != want {
			t.Errorf("Name(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEnsureResizesAndCaches(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "0.png"), 800, 600)
	g := NewGenerator(0, 0)

	path, err := g.Ensure(context.Background(), dir, "0.png")
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if filepath.Base(path) != "thumb_0.jpg" {
		t.Errorf("缩略图路径 = %s", path)
	}
	img, err := imaging.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 400 || b.Dy() != 300 {
		t.Errorf("缩略图尺寸 = %dx%d, want 400x300", b.Dx(), b.Dy())
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("目录中不应残留临时文件: %v", names)
	}
	if _, err := jpegConfig(path); err != nil {
		t.Errorf("缩略图应为 JPEG: %v", err)
	}

	before, _ := os.Stat(path)
	if _, err := g.Ensure(context.Background(), dir, "0.png"); err != nil {
		t.Fatal(err)
	}
	after, _ := os.Stat(path)
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("已存在的缩略图不应重新生成")
	}
}

func TestEnsureKeepsSmallImages(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "1.png"), 120, 90)

	path, err := NewGenerator(0, 0).Ensure(context.Background(), dir, "1.png")
	if err != nil {
		t.Fatal(err)
	}
	img, _ := imaging.Open(path)
	if img.Bounds().Dx() != 120 {
		t.Errorf("小图不应放大, 宽度 = %d", img.Bounds().Dx())
	}
}

func TestEnsureErrors(t *testing.T) {
	dir := t.TempDir()
	g := NewGenerator(0, 0)
	if _, err := g.Ensure(context.Background(), dir, "missing.png"); err == nil {
		t.Error("缺失原图应返回错误")
	}
	if _, err := g.Ensure(context.Background(), dir, "../x.png"); err == nil {
		t.Error("非法文件名应返回错误")
	}
	os.WriteFile(filepath.Join(dir, "bad.png"), []byte("not an image"), 0o644)
	if _, err := g.Ensure(context.Background(), dir, "bad.png"); err == nil {
		t.Error("无法解码的图片应返回错误")
	}
}

func jpegConfig(path string) (image.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, err
	}
	defer f.Close()
	return jpeg.DecodeConfig(f)
}
