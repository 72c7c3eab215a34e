// Package main はマイグレーション状況APIサーバーのエントリポイント。
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"schema-migrator/config"
	"schema-migrator/internal/domain"
	"schema-migrator/internal/handler"
	"schema-migrator/internal/infra"
	"schema-migrator/internal/repository"
	"schema-migrator/internal/usecase"
)

const version = "1.0.0"

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	// 設定読み込み
	cfg := config.Load()

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg, version)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := infra.ShutdownTracer(tp); err != nil {
			slog.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg, infra.ParseLogLevel(cfg.LogLevel), false)

	dialect, err := domain.ParseDialect(cfg.Dialect)
	if err != nil {
		slog.Error("invalid DB_DIALECT", "error", err)
		os.Exit(1)
	}

	// DB初期化
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is not set")
		os.Exit(1)
	}
	db, err := infra.NewDB(cfg.DatabaseURL, dialect, cfg)
	if err != nil {
		slog.Error("failed to init database", "error", err)
		os.Exit(1)
	}

	// DI
	repo := repository.NewMigrationRepository(db, dialect, cfg.TrackingSchema, cfg.TrackingTable)
	service := usecase.NewMigrationService(
		repo,
		repository.NewArtifactStore(cfg.MigrationsDir),
		repository.NewMigrationLog(cfg.MigrationLogPath),
	)
	h := handler.NewMigrationHandler(service)
	router := handler.NewRouter(h, cfg)

	// サーバー起動
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server", "port", cfg.Port, "dialect", dialect)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
