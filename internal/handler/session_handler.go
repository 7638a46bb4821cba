package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sambitcodes/articulate-v2/internal/service"
	"github.com/sambitcodes/articulate-v2/pkg/log"
)

// SessionHandler 处理会话解析、列表、切换、改名与删除的 API 请求。
type SessionHandler struct {
	sessions service.SessionService
	library  service.LibraryService
}

// NewSessionHandler 创建一个新的 SessionHandler 实例。
func NewSessionHandler(sessions service.SessionService, library service.LibraryService) *SessionHandler {
	return &SessionHandler{sessions: sessions, library: library}
}

// sessionIDParam 解析 URL 中的 :id 参数。
// 第二个返回值为 false 时已经写入了错误响应。
func sessionIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的会话 ID",
		})
		return 0, false
	}
	return uint(id), true
}

// writeSessionError 把会话层的业务错误映射为 HTTP 响应。
func writeSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"code":    http.StatusNotFound,
			"message": "会话不存在",
		})
	case errors.Is(err, service.ErrNotSessionOwner):
		c.JSON(http.StatusForbidden, gin.H{
			"code":    http.StatusForbidden,
			"message": "无权操作该会话",
		})
	default:
		log.Errorf("会话操作失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "会话操作失败",
		})
	}
}

// GetActiveSession 解析并返回标签页的活跃会话及其消息。
// 没有任何历史会话时会隐式创建一个新会话。
func (h *SessionHandler) GetActiveSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	tool, ok := toolFromParam(c)
	if !ok {
		return
	}

	session, messages, err := h.sessions.ResolveActiveSession(c.Request.Context(), user.ID, tool)
	if err != nil {
		writeSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"session":  session,
			"messages": messages,
		},
	})
}

// NewChat 显式开启一个新会话并置为活跃。
func (h *SessionHandler) NewChat(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	tool, ok := toolFromParam(c)
	if !ok {
		return
	}

	session, err := h.sessions.NewChat(c.Request.Context(), user.ID, tool)
	if err != nil {
		writeSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "新会话已创建",
		"data":    session,
	})
}

// ListSessions 返回标签页下最近的会话列表。
func (h *SessionHandler) ListSessions(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	tool, ok := toolFromParam(c)
	if !ok {
		return
	}

	summaries, err := h.library.ListSessions(c.Request.Context(), user.ID, tool)
	if err != nil {
		writeSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    summaries,
	})
}

// ListAllSessions 返回用户全部标签页的最近会话列表。
func (h *SessionHandler) ListAllSessions(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	summaries, err := h.library.ListAllSessions(c.Request.Context(), user.ID)
	if err != nil {
		writeSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    summaries,
	})
}

// ActivateSession 把指定会话切换为标签页的活跃会话并返回其消息。
func (h *SessionHandler) ActivateSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	tool, ok := toolFromParam(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	session, messages, err := h.sessions.SwitchActive(c.Request.Context(), user.ID, tool, sessionID)
	if err != nil {
		writeSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "会话已切换",
		"data": gin.H{
			"session":  session,
			"messages": messages,
		},
	})
}

// RenameSessionRequest 定义了改写会话标题 API 的请求体结构。
type RenameSessionRequest struct {
	Title string `json:"title" binding:"required"`
}

// RenameSession 改写会话标题。
func (h *SessionHandler) RenameSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	var req RenameSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：标题不能为空",
		})
		return
	}

	if err := h.library.RenameSession(c.Request.Context(), user.ID, sessionID, strings.TrimSpace(req.Title)); err != nil {
		writeSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "标题已更新",
	})
}

// DeleteSession 删除会话及其全部消息。
// 被删除的是活跃会话时，返回自动创建的替代会话。
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	replacement, err := h.sessions.Delete(c.Request.Context(), user.ID, sessionID)
	if err != nil {
		writeSessionError(c, err)
		return
	}

	data := gin.H{"deleted": sessionID}
	if replacement != nil {
		data["replacement"] = replacement
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "会话已删除",
		"data":    data,
	})
}

// SearchSessions 在标签页的聊天记录中做全文检索。
func (h *SessionHandler) SearchSessions(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	tool, ok := toolFromParam(c)
	if !ok {
		return
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "搜索关键词不能为空",
		})
		return
	}

	hits, err := h.library.Search(c.Request.Context(), user.ID, tool, query)
	if err != nil {
		log.Errorf("搜索聊天记录失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "搜索失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    hits,
	})
}
