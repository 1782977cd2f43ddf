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

	"talktofolder-go/internal/config"
	"talktofolder-go/internal/handler"
	"talktofolder-go/internal/middleware"
	"talktofolder-go/internal/repository"
	"talktofolder-go/internal/service"
	"talktofolder-go/pkg/assistant"
	"talktofolder-go/pkg/database"
	"talktofolder-go/pkg/embedding"
	"talktofolder-go/pkg/es"
	"talktofolder-go/pkg/llm"
	"talktofolder-go/pkg/log"
	"talktofolder-go/pkg/tika"
	"talktofolder-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 与 Elasticsearch
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	folderRepo := repository.NewFolderRepository(database.DB)
	fileRepo := repository.NewFileRepository(database.DB)
	chunkRepo := repository.NewFileChunkRepository(database.DB)
	chatRepo := repository.NewChatRepository(database.DB)
	identityRepo := repository.NewAssistantIdentityRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	tikaClient := tika.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	assistantClient := assistant.NewClient(cfg.Assistant)
	vectorStore := es.NewStore(es.ESClient, cfg.Elasticsearch.IndexName)

	extractService := service.NewExtractService(cfg.Google, tikaClient)
	vectorService := service.NewVectorService(embeddingClient, vectorStore)
	assistantService := service.NewAssistantService(assistantClient, identityRepo, cfg.Assistant, cfg.Indexing.BatchSizeLimit)
	folderService := service.NewFolderService(folderRepo, fileRepo, chatRepo, cfg.Google)
	folderLocker := service.NewRedisFolderLocker(database.RDB, cfg.Indexing.LockTTLSeconds)
	indexService := service.NewIndexService(folderRepo, fileRepo, chunkRepo, extractService, vectorService, assistantService, folderLocker, cfg.Indexing)
	chatService := service.NewChatService(chatRepo, folderRepo, fileRepo, vectorService, assistantService, llmClient)

	// 6. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 7. 注册路由
	folderHandler := handler.NewFolderHandler(folderService, indexService)
	fileHandler := handler.NewFileHandler(indexService)
	chatHandler := handler.NewChatHandler(chatService)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(jwtManager, userRepo))
	{
		folders := apiV1.Group("/folders")
		{
			folders.POST("", folderHandler.CreateFolder)
			folders.GET("/:id/status", folderHandler.Status)
			folders.POST("/:id/index", folderHandler.IndexFolder)
			folders.POST("/:id/index-assistant", folderHandler.IndexFolderAssistant)
		}

		files := apiV1.Group("/files")
		{
			files.POST("/:id/index", fileHandler.IndexFile)
		}

		chat := apiV1.Group("/chat")
		{
			chat.POST("", chatHandler.Chat)
			chat.POST("/assistant", chatHandler.ChatAssistant)
			chat.GET("/:id/messages", chatHandler.Messages)
			chat.DELETE("/:id", chatHandler.Delete)
		}

		apiV1.GET("/chats/recent", chatHandler.Recent)
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务器启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已退出")
}
