package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sambitcodes/articulate-v2/internal/service"
	"github.com/sambitcodes/articulate-v2/pkg/log"
)

// UploadHandler 处理上下文文件（简历等）的上传与提取状态查询。
type UploadHandler struct {
	documents service.DocumentService
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(documents service.DocumentService) *UploadHandler {
	return &UploadHandler{documents: documents}
}

// UploadContext 接收上下文文件，保存后投递异步文本提取任务。
func (h *UploadHandler) UploadContext(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	tool, ok := toolFromParam(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "缺少上传文件",
		})
		return
	}

	record, err := h.documents.UploadContext(c.Request.Context(), user.ID, tool, fileHeader)
	if err != nil {
		if errors.Is(err, service.ErrFileTooLarge) || errors.Is(err, service.ErrUnsupportedFileType) {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    http.StatusBadRequest,
				"message": err.Error(),
			})
			return
		}
		log.Errorf("上传上下文文件失败: user=%d, tab=%s, err=%v", user.ID, tool.Key, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "文件上传失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "文件已接收，正在提取文本",
		"data":    record,
	})
}

// GetContextStatus 返回标签页最近上传文件的提取状态与已提取的文本。
func (h *UploadHandler) GetContextStatus(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	tool, ok := toolFromParam(c)
	if !ok {
		return
	}

	record, err := h.documents.GetExtractionStatus(c.Request.Context(), user.ID, tool)
	if err != nil {
		log.Errorf("查询提取状态失败: user=%d, tab=%s, err=%v", user.ID, tool.Key, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "查询提取状态失败",
		})
		return
	}

	contextText, err := h.documents.GetContextText(c.Request.Context(), user.ID, tool)
	if err != nil {
		log.Errorf("读取上下文文本失败: user=%d, tab=%s, err=%v", user.ID, tool.Key, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "读取上下文文本失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"file":        record,
			"contextText": contextText,
		},
	})
}

// ListFiles 返回用户上传过的全部上下文文件。
func (h *UploadHandler) ListFiles(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	files, err := h.documents.ListFiles(user.ID)
	if err != nil {
		log.Errorf("查询上传文件列表失败: user=%d, err=%v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "查询文件列表失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    files,
	})
}

// DeleteFile 删除一个上下文文件及其对象存储内容。
func (h *UploadHandler) DeleteFile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	fileID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的文件 ID",
		})
		return
	}

	if err := h.documents.DeleteFile(c.Request.Context(), user.ID, uint(fileID)); err != nil {
		switch {
		case errors.Is(err, service.ErrFileNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"code":    http.StatusNotFound,
				"message": err.Error(),
			})
		case errors.Is(err, service.ErrNotFileOwner):
			c.JSON(http.StatusForbidden, gin.H{
				"code":    http.StatusForbidden,
				"message": err.Error(),
			})
		default:
			log.Errorf("删除上下文文件失败: user=%d, fileID=%d, err=%v", user.ID, fileID, err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    http.StatusInternalServerError,
				"message": "删除文件失败",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "文件已删除",
	})
}
