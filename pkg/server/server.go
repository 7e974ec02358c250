// Package server 通过 HTTP 暴露文本生成与会话历史接口。
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/IMBotPlatform/IMBotChat/pkg/ai"
	"github.com/IMBotPlatform/IMBotChat/pkg/config"
)

// chatService 是 HTTP 层依赖的会话与生成能力，由 ai.Service 实现。
type chatService interface {
	Generate(ctx context.Context, sessionID, input string, opts ...ai.ChatOption) (*ai.Result, error)
	History(ctx context.Context, sessionID string, n int) ([]string, error)
	ClearSession(ctx context.Context, sessionID string) error
	Ping(ctx context.Context) error
}

// Server 封装 echo 实例及其依赖。
type Server struct {
	echo         *echo.Echo
	config       config.ServerConfig
	svc          chatService
	logger       zerolog.Logger
	historyLimit int
}

// New 创建 Server 并注册中间件与路由。
// historyLimit 是历史接口未指定 limit 时返回的条目数。
func New(cfg config.ServerConfig, svc chatService, historyLimit int, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	if historyLimit <= 0 {
		historyLimit = ai.DefaultHistoryLimit
	}

	srv := &Server{
		echo:         e,
		config:       cfg,
		svc:          svc,
		logger:       logger,
		historyLimit: historyLimit,
	}

	// Middleware
	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowCredentials: true,
		// 与原服务一致：任意来源均可携带凭证访问。
		UnsafeWildcardOriginWithAllowCredentials: true,
	}))
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	srv.registerRoutes()
	return srv
}

// ServeHTTP 使 Server 可以直接作为 http.Handler 使用。
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start 阻塞监听直到 Shutdown 被调用。
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("starting server")
	if err := s.echo.Start(s.config.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭 HTTP 服务。
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
