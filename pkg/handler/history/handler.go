/*
 * @Description: 历史记录 Handler
 * @Author: 安知鱼
 * @Date: 2026-08-24 16:44:02
 * @LastEditTime: 2026-09-13 10:15:37
 * @LastEditors: 安知鱼
 */
package history_handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/redink-ai/redink/internal/app/middleware"
	"github.com/redink-ai/redink/pkg/constant"
	"github.com/redink-ai/redink/pkg/domain/model"
	"github.com/redink-ai/redink/pkg/response"
	"github.com/redink-ai/redink/pkg/service/history"
	"github.com/redink-ai/redink/pkg/service/outline"
	"github.com/redink-ai/redink/pkg/service/preview"
)

// HistoryHandler 封装了历史记录相关的控制器方法
type HistoryHandler struct {
	historySvc history.Service
	previewSvc *preview.Service
}

// NewHistoryHandler 是 HistoryHandler 的构造函数
func NewHistoryHandler(historySvc history.Service, previewSvc *preview.Service) *HistoryHandler {
	return &HistoryHandler{historySvc: historySvc, previewSvc: previewSvc}
}

// CreateRequest 新建记录。outline.pages 为空时由 outline.raw 解析得到。
type CreateRequest struct {
	Title   string        `json:"title"`
	Outline model.Outline `json:"outline"`
	TaskID  *string       `json:"task_id"`
}

// loadOwned 读取记录并校验归属，不属于当前用户时按不存在处理
func (h *HistoryHandler) loadOwned(c *gin.Context, id string) (*model.HistoryRecord, error) {
	rec, err := h.historySvc.Get(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if userID := middleware.CurrentUserID(c); userID != nil && rec.UserID != nil && *rec.UserID != *userID {
		return nil, fmt.Errorf("%w: 历史记录不存在: %s", constant.ErrNotFound, id)
	}
	return rec, nil
}

// Create 新建历史记录
// @Summary      新建历史记录
// @Tags         历史记录
// @Accept       json
// @Produce      json
// @Param        body  body      CreateRequest  true  "记录内容"
// @Success      200   {object}  response.Response{data=object{record_id=string}}  "创建成功"
// @Router       /history [post]
func (h *HistoryHandler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "请求体格式错误")
		return
	}
	if len(req.Outline.Pages) == 0 && req.Outline.Raw != "" {
		req.Outline.Pages = outline.Parse(req.Outline.Raw)
	}

	id, err := h.historySvc.Create(c.Request.Context(), &history.CreateRequest{
		Title:   req.Title,
		Outline: req.Outline,
		TaskID:  req.TaskID,
		UserID:  middleware.CurrentUserID(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"record_id": id}, "创建成功")
}

// List 分页列出历史记录
// @Summary      历史记录列表
// @Tags         历史记录
// @Produce      json
// @Param        page       query  int     false  "页码"
// @Param        page_size  query  int     false  "每页数量"
// @Param        status     query  string  false  "状态筛选"
// @Success      200  {object}  response.Response{data=model.HistoryListResult}
// @Router       /history [get]
func (h *HistoryHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(history.DefaultPageSize)))

	opts := model.HistoryListOptions{Page: page, PageSize: pageSize, UserID: middleware.CurrentUserID(c)}
	if s := c.Query("status"); s != "" {
		status, err := model.ParseRecordStatus(s)
		if err != nil {
			response.Error(c, err)
			return
		}
		opts.Status = &status
	}

	result, err := h.historySvc.List(c.Request.Context(), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result, "获取成功")
}

// Search 按标题搜索
func (h *HistoryHandler) Search(c *gin.Context) {
	keyword := c.Query("keyword")
	if keyword == "" {
		response.Fail(c, http.StatusBadRequest, "keyword 不能为空")
		return
	}
	records, err := h.historySvc.Search(c.Request.Context(), keyword, middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, records, "搜索成功")
}

// Statistics 按状态统计
func (h *HistoryHandler) Statistics(c *gin.Context) {
	stats, err := h.historySvc.Statistics(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, stats, "获取成功")
}

// Get 获取单条记录的完整内容
// @Summary      获取历史记录
// @Tags         历史记录
// @Produce      json
// @Param        id   path      string  true  "记录ID"
// @Success      200  {object}  response.Response{data=model.HistoryRecordDetail}
// @Failure      404  {object}  response.Response  "记录不存在"
// @Router       /history/{id} [get]
func (h *HistoryHandler) Get(c *gin.Context) {
	rec, err := h.loadOwned(c, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rec.ToDetail(), "获取成功")
}

// Update 部分更新记录；images.generated 允许包含 null
// @Summary      更新历史记录
// @Tags         历史记录
// @Accept       json
// @Produce      json
// @Param        id    path      string                 true  "记录ID"
// @Param        body  body      history.UpdateRequest  true  "要更新的字段"
// @Success      200   {object}  response.Response  "更新成功"
// @Failure      404   {object}  response.Response  "记录不存在"
// @Router       /history/{id} [put]
func (h *HistoryHandler) Update(c *gin.Context) {
	id := c.Param("id")
	var req history.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "请求体格式错误")
		return
	}
	if _, err := h.loadOwned(c, id); err != nil {
		response.Error(c, err)
		return
	}

	ok, err := h.historySvc.Update(c.Request.Context(), id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !ok {
		response.Fail(c, http.StatusNotFound, "历史记录不存在")
		return
	}
	response.Success(c, nil, "更新成功")
}

// Delete 删除记录及其任务目录
func (h *HistoryHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.loadOwned(c, id); err != nil {
		response.Error(c, err)
		return
	}
	ok, err := h.historySvc.Delete(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !ok {
		response.Fail(c, http.StatusNotFound, "历史记录不存在")
		return
	}
	response.Success(c, nil, "删除成功")
}

// Preview 把每页大纲渲染为 HTML
func (h *HistoryHandler) Preview(c *gin.Context) {
	result, err := h.previewSvc.Record(c.Request.Context(), c.Param("id"), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result, "获取成功")
}

// SyncTask 用任务目录中的图片对账对应记录
// @Summary      对账单个任务
// @Tags         历史记录
// @Produce      json
// @Param        task_id  path      string  true  "任务ID"
// @Success      200      {object}  response.Response{data=model.SyncResult}
// @Failure      400      {object}  response.Response  "任务ID非法"
// @Failure      404      {object}  response.Response  "任务目录不存在"
// @Router       /history/sync/{task_id} [post]
func (h *HistoryHandler) SyncTask(c *gin.Context) {
	result, err := h.historySvc.SyncTask(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	msg := "同步成功"
	if result.NoRecord {
		msg = "任务目录没有对应的历史记录"
	}
	response.Success(c, result, msg)
}

// SyncAll 对账所有任务目录
func (h *HistoryHandler) SyncAll(c *gin.Context) {
	result, err := h.historySvc.SyncAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result, fmt.Sprintf("同步完成: 成功 %d, 失败 %d", result.Synced, result.Failed))
}
