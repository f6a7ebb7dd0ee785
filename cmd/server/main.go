// Package main 是应用程序的入口点。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"jurisai-go/internal/config"
	"jurisai-go/internal/handler"
	"jurisai-go/internal/middleware"
	"jurisai-go/internal/pipeline"
	"jurisai-go/internal/repository"
	"jurisai-go/internal/service"
	"jurisai-go/internal/session"
	"jurisai-go/pkg/database"
	"jurisai-go/pkg/es"
	"jurisai-go/pkg/gemini"
	"jurisai-go/pkg/kafka"
	"jurisai-go/pkg/log"
	"jurisai-go/pkg/storage"
	"jurisai-go/pkg/token"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "path to config file")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储、搜索与消息队列
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)
	defer kafka.CloseProducer()

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	geminiClient, err := gemini.NewClient(rootCtx, cfg.Gemini)
	if err != nil {
		log.Fatal("Gemini 客户端初始化失败", err)
	}

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	caseRepo := repository.NewCaseRepository(database.DB)
	sessionRepo := repository.NewSessionRepository(database.RDB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	caseIndex := es.CaseIndex{Name: cfg.Elasticsearch.IndexName}
	sessions := session.NewManager(sessionRepo)

	caseService := service.NewCaseService(caseRepo, userRepo, kafka.Publisher{})
	ingestService := service.NewIngestService(cfg.Ingest)
	reconcileService := service.NewReconcileService(geminiClient)
	router := service.NewModelRouter(cfg.Gemini)
	chatService := service.NewChatService(reconcileService, router, geminiClient, caseService, cfg.Gemini)
	conversationService := service.NewConversationService(sessions, caseService, ingestService)
	userService := service.NewUserService(caseService, sessionRepo, sessions, conversationService, jwtManager)
	searchService := service.NewSearchService(caseIndex)
	exportService := service.NewExportService(storage.NewObjectStore(cfg.MinIO.BucketName), cfg.MinIO.URLExpiry)

	// 6. 启动后台 Kafka 消费者，将保存的案件写入 Elasticsearch
	indexer := pipeline.NewIndexer(caseRepo, caseIndex)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		kafka.StartConsumer(rootCtx, cfg.Kafka, indexer)
	}()

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.MaxMultipartMemory = cfg.Server.MaxUploadMB << 20
	r.Use(middleware.RequestLogger(), gin.Recovery())

	userHandler := handler.NewUserHandler(userService)
	attachmentHandler := handler.NewAttachmentHandler(conversationService)
	chatHandler := handler.NewChatHandler(chatService, conversationService, jwtManager, sessionRepo, sessions)
	conversationHandler := handler.NewConversationHandler(conversationService, exportService)
	caseHandler := handler.NewCaseHandler(conversationService, searchService)
	auth := middleware.AuthMiddleware(jwtManager, sessionRepo, sessions, conversationService)

	// 8. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/auth/refreshToken", userHandler.RefreshToken)

		users := apiV1.Group("/users")
		{
			users.POST("/login", userHandler.Login)

			authed := users.Group("/")
			authed.Use(auth)
			{
				authed.GET("/me", userHandler.GetProfile)
				authed.POST("/logout", userHandler.Logout)
			}
		}

		attachments := apiV1.Group("/attachments")
		attachments.Use(auth)
		{
			attachments.POST("", attachmentHandler.Upload)
			attachments.GET("", attachmentHandler.List)
			attachments.DELETE("", attachmentHandler.Clear)
		}

		chat := apiV1.Group("/chat")
		{
			chat.POST("/send", auth, chatHandler.Send)
			chat.GET("/:token", chatHandler.Handle)
		}

		conversation := apiV1.Group("/conversation")
		conversation.Use(auth)
		{
			conversation.GET("", conversationHandler.GetConversation)
			conversation.POST("/new", conversationHandler.NewConsultation)
			conversation.PUT("/messages/:id", conversationHandler.EditMessage)
			conversation.POST("/messages/:id/export", conversationHandler.ExportMessage)
		}

		cases := apiV1.Group("/cases")
		cases.Use(auth)
		{
			cases.GET("", caseHandler.List)
			cases.GET("/search", caseHandler.Search)
			cases.POST("/:id/open", caseHandler.Open)
			cases.DELETE("/:id", caseHandler.Delete)
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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止 Kafka 消费者并等待其退出
	cancelRoot()
	select {
	case <-consumerDone:
	case <-ctx.Done():
		log.Warnf("等待 Kafka 消费者退出超时")
	}
	log.Info("服务已优雅关闭")
}
