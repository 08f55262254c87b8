// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"chatvault-go/internal/config"
	"chatvault-go/internal/handler"
	"chatvault-go/internal/pipeline"
	"chatvault-go/internal/repository"
	"chatvault-go/internal/service"
	"chatvault-go/internal/unlock"
	"chatvault-go/pkg/database"
	"chatvault-go/pkg/es"
	"chatvault-go/pkg/kafka"
	"chatvault-go/pkg/llm"
	"chatvault-go/pkg/log"
	"chatvault-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库和 Redis
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)

	// rootCtx 在停机时取消，进行中的 WebSocket 会话与后台消费者随之退出
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.DB)
	keyRepo := repository.NewKeyRepository(database.DB)
	blacklist := repository.NewTokenBlacklist(database.RDB)

	// 5. 初始化检索管道：启用时消息经 Kafka 写入 Elasticsearch，否则直接查询数据库
	indexer := service.NewNoopIndexer()
	var searcher service.MessageSearcher
	var consumers sync.WaitGroup
	if cfg.Search.Enabled {
		if err := es.InitES(cfg.Elasticsearch); err != nil {
			log.Fatal("es 初始化失败", err)
		}
		kafka.InitProducer(cfg.Kafka)
		messageIndex := es.NewMessageIndex(es.ESClient, cfg.Elasticsearch.IndexName)
		indexer = service.NewKafkaIndexer()
		searcher = messageIndex

		// 启动后台 Kafka 消费者
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			kafka.StartConsumer(rootCtx, cfg.Kafka, database.RDB, pipeline.NewProcessor(messageIndex))
		}()
	}

	// 6. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	userService := service.NewUserService(userRepo, blacklist, jwtManager)
	unlockCache := unlock.New(userService)
	llmClient := llm.NewClient(cfg.LLM)

	services := handler.Services{
		User:         userService,
		Key:          service.NewKeyService(keyRepo, unlockCache),
		Conversation: service.NewConversationService(conversationRepo),
		Search:       service.NewSearchService(conversationRepo, searcher),
		Chat:         service.NewChatService(conversationRepo, llmClient, indexer, cfg.Chat),
	}

	// 7. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(services, handler.RouterOptions{
		CookieName:     cfg.JWT.CookieName,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:     r,
		BaseContext: func(net.Listener) context.Context { return rootCtx },
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 先停止接收新请求，再取消 WebSocket 会话与消费者
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	cancelRoot()
	consumers.Wait()

	if cfg.Search.Enabled {
		if err := kafka.CloseProducer(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
}
