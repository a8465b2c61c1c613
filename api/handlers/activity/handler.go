package activity

import (
	"saulto/internal/activity"
	"saulto/internal/auth"
	"saulto/internal/common"

	"github.com/gin-gonic/gin"
)

// Handler 管道活动 Handler
type Handler struct {
	service *activity.Service
}

// NewHandler 创建 Handler
func NewHandler(service *activity.Service) *Handler {
	return &Handler{service: service}
}

// List 列出最近的管道活动
// @Summary 列出最近的管道活动
// @Tags Activity
// @Produce json
// @Param page query int false "页码，默认1"
// @Param page_size query int false "每页条数，默认20"
// @Success 200 {object} common.APIResponse
// @Router /api/activities [get]
func (h *Handler) List(c *gin.Context) {
	req := common.DefaultPagination()
	if err := c.ShouldBindQuery(&req); err != nil {
		common.ResponseBadRequest(c, "分页参数无效")
		return
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.GetPageSize()

	activities, total, err := h.service.ListRecent(c.Request.Context(), auth.GetTenantID(c), page, pageSize)
	if err != nil {
		common.ResponseServerError(c, err.Error())
		return
	}
	common.ResponseSuccess(c, gin.H{
		"activities": activities,
		"total":      total,
		"page":       page,
		"pageSize":   pageSize,
	})
}
