/*
 * @Description: 大纲生成 Handler
 * @Author: 安知鱼
 * @Date: 2026-08-25 17:02:11
 * @LastEditTime: 2026-09-12 18:05:40
 * @LastEditors: 安知鱼
 */
package outline_handler

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/redink-ai/redink/internal/app/middleware"
	"github.com/redink-ai/redink/pkg/response"
	"github.com/redink-ai/redink/pkg/service/outline"
)

const (
	// MaxReferenceImages 单次请求最多携带的参考图片数
	MaxReferenceImages = 5
	// MaxReferenceImageSize 单张参考图片的大小上限
	MaxReferenceImageSize = 10 << 20
)

// OutlineHandler 封装了大纲生成相关的控制器方法
type OutlineHandler struct {
	outlineSvc outline.Service
}

// NewOutlineHandler 是 OutlineHandler 的构造函数
func NewOutlineHandler(outlineSvc outline.Service) *OutlineHandler {
	return &OutlineHandler{outlineSvc: outlineSvc}
}

// GenerateRequest JSON 形式的请求，images 为 base64（可带 data URL 前缀）
type GenerateRequest struct {
	Topic  string   `json:"topic"`
	Images []string `json:"images"`
}

// Generate 根据主题生成大纲并保存为历史记录
// @Summary      生成大纲
// @Tags         大纲
// @Accept       json,mpfd
// @Produce      json
// @Param        body  body      GenerateRequest  true  "主题和可选的参考图片"
// @Success      200   {object}  response.Response{data=outline.GenerateResult}  "生成成功"
// @Failure      400   {object}  response.Response  "参数错误或服务商未配置"
// @Failure      502   {object}  response.Response  "服务商调用失败"
// @Router       /outline [post]
func (h *OutlineHandler) Generate(c *gin.Context) {
	topic, images, err := readGenerateRequest(c)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.outlineSvc.Generate(c.Request.Context(), &outline.GenerateRequest{
		Topic:  topic,
		Images: images,
		UserID: middleware.CurrentUserID(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result, "大纲生成成功")
}

func readGenerateRequest(c *gin.Context) (string, [][]byte, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		return readMultipart(c)
	}

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return "", nil, fmt.Errorf("请求体格式错误")
	}
	if len(req.Images) > MaxReferenceImages {
		return "", nil, fmt.Errorf("参考图片最多 %d 张", MaxReferenceImages)
	}
	images := make([][]byte, 0, len(req.Images))
	for i, encoded := range req.Images {
		if _, data, ok := strings.Cut(encoded, ","); ok && strings.HasPrefix(encoded, "data:") {
			encoded = data
		}
		img, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
		if err != nil {
			return "", nil, fmt.Errorf("第 %d 张参考图片不是有效的 base64", i+1)
		}
		if len(img) > MaxReferenceImageSize {
			return "", nil, fmt.Errorf("第 %d 张参考图片超过大小限制", i+1)
		}
		images = append(images, img)
	}
	return req.Topic, images, nil
}

func readMultipart(c *gin.Context) (string, [][]byte, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return "", nil, fmt.Errorf("表单格式错误")
	}
	topic := ""
	if values := form.Value["topic"]; len(values) > 0 {
		topic = values[0]
	}
	files := form.File["images"]
	if len(files) > MaxReferenceImages {
		return "", nil, fmt.Errorf("参考图片最多 %d 张", MaxReferenceImages)
	}
	images := make([][]byte, 0, len(files))
	for _, fh := range files {
		if fh.Size > MaxReferenceImageSize {
			return "", nil, fmt.Errorf("参考图片 %s 超过大小限制", fh.Filename)
		}
		f, err := fh.Open()
		if err != nil {
			return "", nil, fmt.Errorf("读取参考图片失败: %w", err)
		}
		data, err := io.ReadAll(io.LimitReader(f, MaxReferenceImageSize+1))
		f.Close()
		if err != nil {
			return "", nil, fmt.Errorf("读取参考图片失败: %w", err)
		}
		images = append(images, data)
	}
	return topic, images, nil
}
