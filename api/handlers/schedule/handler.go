package schedule

import (
	"errors"
	"strconv"

	"saulto/internal/auth"
	"saulto/internal/common"
	"saulto/internal/scheduler"

	"github.com/gin-gonic/gin"
)

// Handler 调度管理 Handler
type Handler struct {
	store       *scheduler.EntryStore
	coordinator *scheduler.Coordinator
}

// NewHandler 创建 Handler
func NewHandler(store *scheduler.EntryStore, coordinator *scheduler.Coordinator) *Handler {
	return &Handler{store: store, coordinator: coordinator}
}

// List 列出调度条目
// @Summary 列出当前租户的调度条目
// @Tags Schedule
// @Produce json
// @Success 200 {object} common.APIResponse
// @Router /api/schedules [get]
func (h *Handler) List(c *gin.Context) {
	entries, err := h.store.List(c.Request.Context(), auth.GetTenantID(c))
	if err != nil {
		common.ResponseServerError(c, err.Error())
		return
	}
	common.ResponseSuccess(c, gin.H{
		"entries": entries,
		"total":   len(entries),
	})
}

// setEnabledRequest 启停请求体
type setEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetEnabled 启用/停用调度条目
// @Summary 启用或停用调度条目
// @Tags Schedule
// @Accept json
// @Produce json
// @Param id path int true "条目ID"
// @Param request body setEnabledRequest true "启停参数"
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /api/schedules/{id}/enabled [put]
func (h *Handler) SetEnabled(c *gin.Context) {
	entryID, tenantOK := h.entryForTenant(c)
	if !tenantOK {
		return
	}

	var req setEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数无效: "+err.Error())
		return
	}

	if err := h.store.SetEnabled(c.Request.Context(), entryID, *req.Enabled); err != nil {
		respondScheduleError(c, err)
		return
	}
	common.ResponseSuccessMessage(c, "调度条目已更新", gin.H{"id": entryID, "enabled": *req.Enabled})
}

// TriggerNow 手动立即触发
// @Summary 立即触发一次同步+刷新
// @Description 绕过到期判断，记账逻辑与定时触发一致
// @Tags Schedule
// @Produce json
// @Param id path int true "条目ID"
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /api/schedules/{id}/trigger [post]
func (h *Handler) TriggerNow(c *gin.Context) {
	entryID, tenantOK := h.entryForTenant(c)
	if !tenantOK {
		return
	}

	if err := h.coordinator.TriggerNow(c.Request.Context(), entryID); err != nil {
		respondScheduleError(c, err)
		return
	}
	common.ResponseSuccessMessage(c, "已触发同步刷新", gin.H{"id": entryID})
}

// entryForTenant 解析路径里的条目ID并校验归属租户
func (h *Handler) entryForTenant(c *gin.Context) (int64, bool) {
	entryID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || entryID <= 0 {
		common.ResponseBadRequest(c, "无效的条目ID")
		return 0, false
	}

	entry, err := h.store.Get(c.Request.Context(), entryID)
	if err != nil {
		respondScheduleError(c, err)
		return 0, false
	}
	if entry.TenantID != auth.GetTenantID(c) {
		// 跨租户访问按不存在处理，不泄露条目信息
		common.ResponseError(c, common.CodeScheduleNotFound, "调度条目不存在")
		return 0, false
	}
	return entryID, true
}

func respondScheduleError(c *gin.Context, err error) {
	if errors.Is(err, scheduler.ErrEntryNotFound) {
		common.ResponseError(c, common.CodeScheduleNotFound, "调度条目不存在")
		return
	}
	common.ResponseServerError(c, err.Error())
}
