package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"drug-checker-go/src/configs"
	"drug-checker-go/src/core/metrics"
	"drug-checker-go/src/core/middleware"
	"drug-checker-go/src/core/utils"
	"drug-checker-go/src/drug"

	// 导入所有VLLLM后端以确保init函数被调用
	_ "drug-checker-go/src/core/providers/vlllm/gemini"
	_ "drug-checker-go/src/core/providers/vlllm/ollama"
	_ "drug-checker-go/src/core/providers/vlllm/openai"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func LoadConfigAndLogger(configPath string) (*configs.Config, *utils.Logger, error) {
	// 加载配置,默认使用.config.yaml
	config, configPath, err := configs.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	// 初始化日志系统
	logger, err := utils.NewLogger(config)
	if err != nil {
		return nil, nil, err
	}
	if configPath == "" {
		logger.Info("日志系统初始化成功, 未找到配置文件，使用默认配置")
	} else {
		logger.Info(fmt.Sprintf("日志系统初始化成功, 配置文件路径: %s", configPath))
	}

	return config, logger, nil
}

// NewRouter 构建gin引擎并注册全部路由
func NewRouter(config *configs.Config, logger *utils.Logger, service drug.DrugService, ctx context.Context) (*gin.Engine, error) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.Middleware())
	router.Use(middleware.RequestID(logger))
	router.Use(middleware.CORS(config))
	router.Use(middleware.BodyLimit(config.Server.MaxBodyBytes))
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API路由全部挂载到/api前缀下
	apiGroup := router.Group("/api")
	if err := service.Start(ctx, router, apiGroup); err != nil {
		return nil, err
	}
	return router, nil
}

func StartHttpServer(config *configs.Config, logger *utils.Logger, g *errgroup.Group, groupCtx context.Context) (*drug.DefaultDrugService, error) {
	// 初始化Gin引擎
	if config.Log.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// 启动Drug服务
	drugService, err := drug.NewDefaultDrugService(config, logger)
	if err != nil {
		logger.Error(fmt.Sprintf("Drug 服务初始化失败: %v", err))
		return nil, err
	}

	router, err := NewRouter(config, logger, drugService, groupCtx)
	if err != nil {
		logger.Error(fmt.Sprintf("Drug 服务启动失败: %v", err))
		_ = drugService.Cleanup()
		return nil, err
	}

	// HTTP Server（支持优雅关机）
	addr := net.JoinHostPort(config.Server.IP, strconv.Itoa(config.Server.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info(fmt.Sprintf("Gin 服务已启动，访问地址: http://%s", addr))

		// 在单独的 goroutine 中监听关闭信号
		go func() {
			<-groupCtx.Done()
			logger.Info("收到关闭信号，开始关闭HTTP服务...")

			// 创建关闭超时上下文
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP服务关闭失败", err)
			} else {
				logger.Info("HTTP服务已优雅关闭")
			}
			if err := drugService.Cleanup(); err != nil {
				logger.Error("Drug服务清理失败", err)
			}
		}()

		// ListenAndServe 返回 ErrServerClosed 时表示正常关闭
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP 服务启动失败", err)
			return err
		}
		return nil
	})

	return drugService, nil
}

func GracefulShutdown(groupCtx context.Context, cancel context.CancelFunc, logger *utils.Logger, g *errgroup.Group) {
	// 监听系统信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// 等待信号，或任一服务异常退出
	select {
	case sig := <-sigChan:
		logger.Info(fmt.Sprintf("接收到系统信号: %v，开始优雅关闭服务", sig))
	case <-groupCtx.Done():
		logger.Warn("服务异常退出，开始关闭其余服务")
	}

	// 取消上下文，通知所有服务开始关闭
	cancel()

	// 等待所有服务关闭，设置超时保护
	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("服务关闭过程中出现错误", err)
			os.Exit(1)
		}
		logger.Info("所有服务已优雅关闭")
	case <-time.After(15 * time.Second):
		logger.Error("服务关闭超时，强制退出")
		os.Exit(1)
	}
}

func main() {
	configPath := flag.String("config", "", "配置文件路径，默认依次尝试 .config.yaml 与 config.yaml")
	flag.Parse()

	// 先加载 .env，API密钥等通过环境变量覆盖配置
	envErr := godotenv.Load()

	// 加载配置和初始化日志系统
	config, logger, err := LoadConfigAndLogger(*configPath)
	if err != nil {
		fmt.Println("加载配置或初始化日志系统失败:", err)
		os.Exit(1)
	}
	defer logger.Close()
	if envErr != nil {
		logger.Warn("未找到 .env 文件，使用系统环境变量")
	}

	// 创建可取消的上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, groupCtx := errgroup.WithContext(ctx)

	// 启动 Http 服务
	if _, err := StartHttpServer(config, logger, g, groupCtx); err != nil {
		logger.Error("启动服务失败:", err)
		cancel()
		os.Exit(1)
	}

	// 启动优雅关机处理
	GracefulShutdown(groupCtx, cancel, logger, g)

	logger.Info("程序已成功退出")
}
