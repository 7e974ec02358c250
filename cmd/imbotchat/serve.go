package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/IMBotPlatform/IMBotChat/pkg/ai"
	"github.com/IMBotPlatform/IMBotChat/pkg/config"
	"github.com/IMBotPlatform/IMBotChat/pkg/logging"
	"github.com/IMBotPlatform/IMBotChat/pkg/server"
)

// newServeCmd 构建 serve 子命令。
func newServeCmd() *cobra.Command {
	var (
		cfgFile string
		addr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.ListenAddr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logging.New(cfg.Log, os.Stdout))
		},
	}

	cmd.Flags().StringVarP(&cfgFile, "config", "c", "config.yaml", "YAML 配置文件路径")
	cmd.Flags().StringVar(&addr, "addr", "", "监听地址，覆盖配置文件与 LISTEN_ADDR")
	return cmd
}

// run 组装存储、AI 服务与 HTTP 服务，阻塞直到 ctx 结束。
//
// 启动流程:
// Config -> Store (memory/file/redis) -> ai.Service -> server.Server -> Start
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	store, closeStore, err := newStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := ai.NewService(&cfg.AI, store,
		ai.WithLogger(logger),
		ai.WithBreaker(cfg.Breaker),
	)
	srv := server.New(cfg.Server, svc, cfg.AI.HistoryLimit, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return <-errCh
}

// newStore 按配置创建会话存储，返回的 close 函数负责释放资源。
func newStore(ctx context.Context, cfg config.StoreConfig, logger zerolog.Logger) (ai.SessionStore, func(), error) {
	switch cfg.Driver {
	case config.StoreMemory:
		store := ai.NewMemoryStore(
			ai.WithMaxSessions(cfg.MaxSessions),
			ai.WithTTL(cfg.TTL),
		)
		janitorCtx, cancel := context.WithCancel(ctx)
		go store.RunJanitor(janitorCtx, cfg.PruneInterval)
		return store, cancel, nil
	case config.StoreFile:
		store, err := ai.NewFileStore(cfg.FileDir, ai.WithFileLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case config.StoreRedis:
		rdb, err := ai.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := rdb.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close redis client")
			}
		}
		return ai.NewRedisStore(rdb, cfg.RedisPrefix, cfg.TTL), closeFn, nil
	default:
		return nil, nil, errors.New("unknown store driver: " + cfg.Driver)
	}
}
