/*
 * @Description: 图片生成与访问 Handler
 * @Author: 安知鱼
 * @Date: 2026-08-27 14:20:51
 * @LastEditTime: 2026-09-12 18:31:09
 * @LastEditors: 安知鱼
 */
package image_handler

import (
	"errors"
	"log"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/redink-ai/redink/internal/app/middleware"
	"github.com/redink-ai/redink/internal/infra/storage"
	"github.com/redink-ai/redink/internal/pkg/pathutil"
	"github.com/redink-ai/redink/pkg/response"
	"github.com/redink-ai/redink/pkg/service/history"
	"github.com/redink-ai/redink/pkg/service/image"
	"github.com/redink-ai/redink/pkg/service/thumbnail"
)

// ImageHandler 封装了图片相关的控制器方法
type ImageHandler struct {
	imageSvc image.Service
	store    storage.TaskStorage
	thumbs   *thumbnail.Generator
}

// NewImageHandler 是 ImageHandler 的构造函数
func NewImageHandler(imageSvc image.Service, store storage.TaskStorage, thumbs *thumbnail.Generator) *ImageHandler {
	return &ImageHandler{imageSvc: imageSvc, store: store, thumbs: thumbs}
}

// GenerateRequest 图片生成请求，pages 为空时生成全部页面
type GenerateRequest struct {
	RecordID string `json:"record_id" binding:"required"`
	Pages    []int  `json:"pages"`
}

// Generate 为记录的每一页生成图片
// @Summary      生成图片
// @Tags         图片
// @Accept       json
// @Produce      json
// @Param        body  body      GenerateRequest  true  "记录ID和可选的页码"
// @Success      200   {object}  response.Response{data=image.GenerateResult}  "生成完成"
// @Failure      400   {object}  response.Response  "参数错误或服务商未配置"
// @Failure      404   {object}  response.Response  "记录不存在"
// @Router       /generate [post]
func (h *ImageHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "record_id 不能为空")
		return
	}

	result, err := h.imageSvc.GenerateForRecord(c.Request.Context(), &image.GenerateRequest{
		RecordID: req.RecordID,
		UserID:   middleware.CurrentUserID(c),
		Pages:    req.Pages,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	msg := "图片生成完成"
	if result.Failed > 0 {
		msg = "部分图片生成失败"
	}
	response.Success(c, result, msg)
}

// Serve 返回任务目录中的图片，?thumbnail=1 时返回缩略图
// @Summary      获取图片
// @Tags         图片
// @Produce      image/png,image/jpeg
// @Param        task_id    path   string  true   "任务ID"
// @Param        filename   path   string  true   "文件名"
// @Param        thumbnail  query  string  false  "是否返回缩略图"
// @Success      200
// @Failure      400  {object}  response.Response  "路径非法"
// @Failure      404  {object}  response.Response  "图片不存在"
// @Router       /images/{task_id}/{filename} [get]
func (h *ImageHandler) Serve(c *gin.Context) {
	taskID := c.Param("task_id")
	filename := c.Param("filename")

	if err := pathutil.ValidateSegment(taskID, "task_id"); err != nil {
		response.Error(c, err)
		return
	}
	if err := pathutil.ValidateSegment(filename, "filename"); err != nil {
		response.Error(c, err)
		return
	}
	if !history.IsImageFile(filename) {
		response.Fail(c, http.StatusBadRequest, "只支持 .png/.jpg/.jpeg 图片")
		return
	}

	path, err := h.store.ImagePath(taskID, filename)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			response.Fail(c, http.StatusNotFound, "图片不存在")
			return
		}
		response.Error(c, err)
		return
	}

	if wantThumbnail(c.Query("thumbnail")) && h.thumbs != nil {
		thumbPath, err := h.thumbs.Ensure(c.Request.Context(), filepath.Dir(path), filename)
		if err == nil {
			path = thumbPath
		} else {
			log.Printf("[图片] 生成缩略图失败，返回原图 %s/%s: %v", taskID, filename, err)
		}
	}

	c.Header("Cache-Control", "public, max-age=3600")
	c.File(path)
}

func wantThumbnail(v string) bool {
	switch v {
	case "1", "true", "yes":
		return true
	}
	return false
}
