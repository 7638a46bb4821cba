// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sambitcodes/articulate-v2/internal/config"
	"github.com/sambitcodes/articulate-v2/internal/handler"
	"github.com/sambitcodes/articulate-v2/internal/middleware"
	"github.com/sambitcodes/articulate-v2/internal/model"
	"github.com/sambitcodes/articulate-v2/internal/pipeline"
	"github.com/sambitcodes/articulate-v2/internal/repository"
	"github.com/sambitcodes/articulate-v2/internal/service"
	"github.com/sambitcodes/articulate-v2/pkg/database"
	"github.com/sambitcodes/articulate-v2/pkg/es"
	"github.com/sambitcodes/articulate-v2/pkg/kafka"
	"github.com/sambitcodes/articulate-v2/pkg/llm"
	"github.com/sambitcodes/articulate-v2/pkg/log"
	"github.com/sambitcodes/articulate-v2/pkg/storage"
	"github.com/sambitcodes/articulate-v2/pkg/tika"
	"github.com/sambitcodes/articulate-v2/pkg/token"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库与外部依赖
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 3.1 同步表结构
	if err := database.DB.AutoMigrate(
		&model.User{},
		&model.ChatSession{},
		&model.ChatHistory{},
		&model.SourceFile{},
	); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	sessionRepo := repository.NewSessionRepository(database.DB)
	uploadRepo := repository.NewUploadRepository(database.DB)
	stateRepo := repository.NewStateRepository(database.RDB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	tikaClient := tika.NewClient(cfg.Tika)
	llmClient := llm.NewClient(cfg.LLM)
	listingCache := service.NewListingCache()
	chatIndexer := service.NewEsChatIndexer(cfg.Elasticsearch.IndexName)

	userService := service.NewUserService(userRepo, jwtManager)
	sessionService := service.NewSessionService(sessionRepo, stateRepo, listingCache, chatIndexer, &cfg)
	libraryService := service.NewLibraryService(sessionRepo, listingCache, chatIndexer, &cfg)
	toolService := service.NewToolService(sessionService, stateRepo, llmClient, &cfg)
	documentService := service.NewDocumentService(uploadRepo, stateRepo, cfg.Upload, cfg.MinIO)

	// 6. 初始化文本提取管道 (Processor)
	processor := pipeline.NewProcessor(tikaClient, cfg.MinIO, uploadRepo, stateRepo)

	// 7. 启动后台 Kafka 消费者
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	userHandler := handler.NewUserHandler(userService, cfg.MinIO)
	authHandler := handler.NewAuthHandler(userService)
	sessionHandler := handler.NewSessionHandler(sessionService, libraryService)
	toolHandler := handler.NewToolHandler(toolService)
	uploadHandler := handler.NewUploadHandler(documentService)

	// 9. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", authHandler.RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", userHandler.GetProfile)
				authed.POST("/logout", userHandler.Logout)
				authed.PUT("/profile", userHandler.UpdateProfile)
				authed.PUT("/password", userHandler.ChangePassword)
				authed.POST("/profile-pic", userHandler.UploadProfilePic)
			}
		}

		// 工具标签页路由组，需要认证
		tabs := apiV1.Group("/tabs/:tab")
		tabs.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			// 会话解析与管理
			tabs.GET("/session", sessionHandler.GetActiveSession)
			tabs.POST("/sessions", sessionHandler.NewChat)
			tabs.GET("/sessions", sessionHandler.ListSessions)
			tabs.POST("/sessions/:id/activate", sessionHandler.ActivateSession)

			// 聊天与生成动作
			tabs.POST("/chat", toolHandler.Chat)
			tabs.POST("/generate", toolHandler.Generate)

			// 上下文文件
			tabs.POST("/context", uploadHandler.UploadContext)
			tabs.GET("/context", uploadHandler.GetContextStatus)

			// 聊天记录检索
			tabs.GET("/search", sessionHandler.SearchSessions)
		}

		// 跨标签页的会话与文件操作，需要认证
		sessions := apiV1.Group("/sessions")
		sessions.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			sessions.PUT("/:id/title", sessionHandler.RenameSession)
			sessions.DELETE("/:id", sessionHandler.DeleteSession)
		}

		library := apiV1.Group("/library")
		library.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			library.GET("/sessions", sessionHandler.ListAllSessions)
			library.GET("/files", uploadHandler.ListFiles)
			library.DELETE("/files/:id", uploadHandler.DeleteFile)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
