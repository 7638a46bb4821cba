package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sambitcodes/articulate-v2/internal/service"
	"github.com/sambitcodes/articulate-v2/pkg/log"
)

// ToolHandler 处理各工具标签页的聊天与生成动作。
type ToolHandler struct {
	tools service.ToolService
}

// NewToolHandler 创建一个新的 ToolHandler 实例。
func NewToolHandler(tools service.ToolService) *ToolHandler {
	return &ToolHandler{tools: tools}
}

// writeToolError 把工具层的业务错误映射为 HTTP 响应。
func writeToolError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "消息不能为空",
		})
	case errors.Is(err, service.ErrMessageTooLong):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "消息超出长度限制",
		})
	case errors.Is(err, service.ErrModelNotAllowed):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "该工具不支持所选模型",
		})
	case errors.Is(err, service.ErrMissingInput):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": err.Error(),
		})
	case errors.Is(err, service.ErrUnknownAction):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "不支持的生成动作",
		})
	default:
		log.Errorf("工具调用失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "工具调用失败",
		})
	}
}

// Chat 在活跃会话上完成一轮对话。
func (h *ToolHandler) Chat(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	tool, ok := toolFromParam(c)
	if !ok {
		return
	}

	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：message 不能为空",
		})
		return
	}

	result, err := h.tools.Chat(c.Request.Context(), user.ID, tool, req)
	if err != nil {
		writeToolError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    result,
	})
}

// Generate 执行工具的一次性生成动作（面试题、文章、学习计划、代码分析）。
func (h *ToolHandler) Generate(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	tool, ok := toolFromParam(c)
	if !ok {
		return
	}

	var req service.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载",
		})
		return
	}

	result, err := h.tools.Generate(c.Request.Context(), user.ID, tool, req)
	if err != nil {
		writeToolError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    result,
	})
}
