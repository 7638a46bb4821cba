// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sambitcodes/articulate-v2/internal/config"
	"github.com/sambitcodes/articulate-v2/internal/model"
)

// currentUser 取出 AuthMiddleware 注入的用户对象。
// 第二个返回值为 false 时已经写入了错误响应。
func currentUser(c *gin.Context) (*model.User, bool) {
	userValue, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return nil, false
	}
	user, ok := userValue.(*model.User)
	if !ok || user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "用户数据类型错误"})
		return nil, false
	}
	return user, true
}

// toolFromParam 按 URL 中的 :tab 参数解析工具配置。
// 第二个返回值为 false 时已经写入了错误响应。
func toolFromParam(c *gin.Context) (*config.ToolConfig, bool) {
	key := c.Param("tab")
	tool, ok := config.Conf.ToolByKey(key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    http.StatusNotFound,
			"message": "未知的工具标签页: " + key,
		})
		return nil, false
	}
	return tool, true
}
