package handler

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sambitcodes/articulate-v2/internal/config"
	"github.com/sambitcodes/articulate-v2/internal/service"
	"github.com/sambitcodes/articulate-v2/pkg/log"
	"github.com/sambitcodes/articulate-v2/pkg/storage"
)

// profilePicMaxSize 是头像文件的大小上限 (2MB)。
const profilePicMaxSize = 2 * 1024 * 1024

// UserHandler 负责处理所有与用户相关的 API 请求。
type UserHandler struct {
	userService service.UserService
	minioCfg    config.MinIOConfig
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService, minioCfg config.MinIOConfig) *UserHandler {
	return &UserHandler{userService: userService, minioCfg: minioCfg}
}

// Register 处理用户注册请求。
func (h *UserHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Register: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：姓名、用户名、邮箱和密码不能为空",
		})
		return
	}

	user, err := h.userService.Register(req)
	if err != nil {
		if errors.Is(err, service.ErrUsernameTaken) || errors.Is(err, service.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{
				"code":    http.StatusConflict,
				"message": err.Error(),
			})
			return
		}
		log.Errorf("Register: User registration failed for '%s', error: %v", req.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "注册失败",
		})
		return
	}

	log.Infof("User '%s' registered successfully", user.Username)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "User registered successfully",
	})
}

// LoginRequest 定义了用户登录 API 的请求体结构。
// identifier 可以是用户名或邮箱。
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// Login 处理用户登录请求。
func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Login: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：账号和密码不能为空",
		})
		return
	}

	accessToken, refreshToken, err := h.userService.Login(req.Identifier, req.Password)
	if err != nil {
		log.Warnf("Login: User authentication failed for '%s', error: %v", req.Identifier, err)
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    http.StatusUnauthorized,
			"message": "无效的凭证",
		})
		return
	}

	log.Infof("User '%s' logged in successfully", req.Identifier)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Login successful",
		"data": gin.H{
			"token":        accessToken,
			"refreshToken": refreshToken,
		},
	})
}

// GetProfile 获取当前登录用户的个人信息。
// 用户信息已经由 AuthMiddleware 注入到上下文中。
func (h *UserHandler) GetProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	// 头像存的是对象路径，返回时换成限时的预签名 URL
	var picURL string
	if user.ProfilePic != nil && *user.ProfilePic != "" {
		url, err := storage.GetPresignedURL(h.minioCfg.BucketName, *user.ProfilePic, time.Hour)
		if err == nil {
			picURL = url
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"id":            user.ID,
			"fullName":      user.FullName,
			"username":      user.Username,
			"email":         user.Email,
			"phoneNumber":   user.PhoneNumber,
			"profilePicUrl": picURL,
			"role":          user.Role,
			"createdAt":     user.CreatedAt,
		},
	})
}

// UpdateProfileRequest 定义了更新个人信息 API 的请求体结构。
type UpdateProfileRequest struct {
	FullName    string  `json:"fullName"`
	PhoneNumber *string `json:"phoneNumber"`
}

// UpdateProfile 更新当前用户的展示名与电话号码。
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载",
		})
		return
	}

	updated, err := h.userService.UpdateProfile(user.ID, req.FullName, req.PhoneNumber)
	if err != nil {
		log.Errorf("UpdateProfile: Failed for user '%s', error: %v", user.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "更新个人信息失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "个人信息更新成功",
		"data":    updated,
	})
}

// ChangePasswordRequest 定义了修改密码 API 的请求体结构。
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=6"`
}

// ChangePassword 在验证旧密码后修改当前用户的密码。
func (h *UserHandler) ChangePassword(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：新旧密码不能为空，新密码至少 6 位",
		})
		return
	}

	if err := h.userService.ChangePassword(user.ID, req.OldPassword, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrWrongPassword) {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    http.StatusBadRequest,
				"message": err.Error(),
			})
			return
		}
		log.Errorf("ChangePassword: Failed for user '%s', error: %v", user.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "修改密码失败",
		})
		return
	}

	log.Infof("User '%s' changed password", user.Username)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "密码修改成功",
	})
}

// UploadProfilePic 上传用户头像到对象存储并记录其位置。
func (h *UserHandler) UploadProfilePic(c *gin.Context) {
	user, ok := currentUser(c)
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
	if fileHeader.Size > profilePicMaxSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "头像文件超出大小限制 (2MB)",
		})
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "头像仅支持 JPG/PNG 格式",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "读取上传文件失败",
		})
		return
	}
	defer file.Close()

	objectName := fmt.Sprintf("avatars/%d/%d%s", user.ID, time.Now().UnixNano(), ext)
	contentType := fileHeader.Header.Get("Content-Type")
	if err := storage.PutObject(c.Request.Context(), h.minioCfg.BucketName, objectName, file, fileHeader.Size, contentType); err != nil {
		log.Errorf("UploadProfilePic: Failed to store avatar for user '%s', error: %v", user.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "保存头像失败",
		})
		return
	}

	if err := h.userService.UpdateProfilePic(user.ID, objectName); err != nil {
		log.Errorf("UploadProfilePic: Failed to update record for user '%s', error: %v", user.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "更新头像记录失败",
		})
		return
	}

	url, _ := storage.GetPresignedURL(h.minioCfg.BucketName, objectName, time.Hour)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "头像上传成功",
		"data":    gin.H{"profilePicUrl": url},
	})
}

// Logout 处理用户登出逻辑。
func (h *UserHandler) Logout(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	if err := h.userService.Logout(tokenString); err != nil {
		log.Error("Logout: Failed to logout", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "登出失败",
		})
		return
	}

	user, ok := currentUser(c)
	if !ok {
		return
	}
	log.Infof("User '%s' logged out successfully", user.Username)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "登出成功",
	})
}
