package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Generation (rate limited when configured)
	var generateMW []echo.MiddlewareFunc
	if s.config.RateLimit > 0 {
		generateMW = append(generateMW, newRateLimiter(s.config.RateLimit, s.config.RateBurst))
	}
	s.echo.POST("/generate", s.handleGenerate, generateMW...)

	// Session history
	s.echo.GET("/sessions/:id/history", s.handleHistory)
	s.echo.DELETE("/sessions/:id", s.handleClearSession)
}
