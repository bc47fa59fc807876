package image_handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/redink-ai/redink/internal/infra/storage"
	"github.com/redink-ai/redink/pkg/constant"
	"github.com/redink-ai/redink/pkg/response"
	image_service "github.com/redink-ai/redink/pkg/service/image"
	"github.com/redink-ai/redink/pkg/service/thumbnail"
)

type stubImageService struct {
	req    *image_service.GenerateRequest
	result *image_service.GenerateResult
	err    error
}

func (s *stubImageService) GenerateForRecord(ctx context.Context, req *image_service.GenerateRequest) (*image_service.GenerateResult, error) {
	s.req = req
	return s.result, s.err
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func setupEngine(t *testing.T, svc image_service.Service) (*gin.Engine, *storage.LocalStorage) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	if _, err := store.WriteImage(context.Background(), "task_test", "0.png", pngBytes(t, 800, 600)); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}

	h := NewImageHandler(svc, store, thumbnail.NewGenerator(thumbnail.DefaultWidth, thumbnail.DefaultQuality))
	r := gin.New()
	r.GET("/api/images/:task_id/:filename", h.Serve)
	r.POST("/api/generate", h.Generate)
	return r, store
}

func TestServe(t *testing.T) {
	r, _ := setupEngine(t, nil)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"正常返回原图", "/api/images/task_test/0.png", http.StatusOK},
		{"非图片扩展名", "/api/images/task_test/secret.txt", http.StatusBadRequest},
		{"任务ID为上级目录", "/api/images/../0.png", http.StatusBadRequest},
		{"任务ID包含反斜杠", "/api/images/task%5C..%5Cx/0.png", http.StatusBadRequest},
		{"文件不存在", "/api/images/task_test/9.png", http.StatusNotFound},
		{"任务目录不存在", "/api/images/task_none/0.png", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != tt.wantStatus {
				t.Errorf("GET %s = %d，期望 %d，body=%s", tt.path, w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestServeThumbnail(t *testing.T) {
	r, _ := setupEngine(t, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/images/task_test/0.png?thumbnail=1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d，body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "image/jpeg") {
		t.Errorf("Content-Type = %q，期望 image/jpeg", ct)
	}
	cfg, err := jpeg.DecodeConfig(w.Body)
	if err != nil {
		t.Fatalf("缩略图不是 JPEG: %v", err)
	}
	if cfg.Width != thumbnail.DefaultWidth || cfg.Height != 300 {
		t.Errorf("缩略图尺寸 = %dx%d，期望 400x300", cfg.Width, cfg.Height)
	}
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "max-age") {
		t.Errorf("Cache-Control = %q", cc)
	}
}

func TestGenerate(t *testing.T) {
	t.Run("缺少 record_id", func(t *testing.T) {
		r, _ := setupEngine(t, &stubImageService{})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{}`)))
		if w.Code != http.StatusBadRequest {
			t.Errorf("状态码 = %d，期望 400", w.Code)
		}
	})

	t.Run("部分失败返回 200 并附带结果", func(t *testing.T) {
		svc := &stubImageService{result: &image_service.GenerateResult{RecordID: "r1", TaskID: "task_x", Failed: 1}}
		r, _ := setupEngine(t, svc)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{"record_id":"r1","pages":[1]}`)))
		if w.Code != http.StatusOK {
			t.Fatalf("状态码 = %d，body=%s", w.Code, w.Body.String())
		}
		if svc.req == nil || svc.req.RecordID != "r1" || len(svc.req.Pages) != 1 || svc.req.Pages[0] != 1 {
			t.Errorf("服务收到的请求不正确: %+v", svc.req)
		}
		var resp response.Response
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Message != "部分图片生成失败" {
			t.Errorf("message = %q", resp.Message)
		}
	})

	t.Run("服务商错误映射为 502", func(t *testing.T) {
		svc := &stubImageService{err: errors.Join(constant.ErrProvider, errors.New("上游超时"))}
		r, _ := setupEngine(t, svc)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{"record_id":"r1"}`)))
		if w.Code != http.StatusBadGateway {
			t.Errorf("状态码 = %d，期望 502", w.Code)
		}
	})
}
