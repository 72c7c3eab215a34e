// Package main はスキーママイグレーションCLIのエントリポイント。
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gorm.io/gorm"

	"schema-migrator/config"
	"schema-migrator/internal/domain"
	"schema-migrator/internal/infra"
	"schema-migrator/internal/repository"
	"schema-migrator/internal/usecase"
)

const version = "1.0.0"

var (
	databaseURL    string
	dialectName    string
	migrationsDir  string
	snapshotPath   string
	logPath        string
	trackingTable  string
	trackingSchema string
	output         string
)

var (
	cfg            *config.Config
	tracerProvider *sdktrace.TracerProvider
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "migrator",
		Short:         "Snapshot-driven schema migration tool",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .envファイルを読み込む（存在しない場合は無視）
			_ = godotenv.Load()
			cfg = config.Load()
			applyFlagOverrides(cmd)

			tp, err := infra.InitTracer(cmd.Context(), cfg, version)
			if err != nil {
				return fmt.Errorf("failed to init tracer: %w", err)
			}
			tracerProvider = tp

			// 標準出力は結果表示に使うため、ログは標準エラーに出す
			infra.SetupLogger(cfg, infra.ParseLogLevel(cfg.LogLevel), true)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return infra.ShutdownTracer(tracerProvider)
		},
	}

	// グローバルフラグ（環境変数より優先）
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&databaseURL, "database-url", "", "Database DSN (or set DATABASE_URL)")
	flags.StringVar(&dialectName, "dialect", "", "SQL dialect: postgres, mysql, sqlite (or set DB_DIALECT)")
	flags.StringVar(&migrationsDir, "migrations-dir", "", "Migration artifact directory (or set MIGRATIONS_DIR)")
	flags.StringVar(&snapshotPath, "snapshot", "", "Snapshot file path (or set SNAPSHOT_PATH)")
	flags.StringVar(&logPath, "log-file", "", "Migration log path (or set MIGRATION_LOG_PATH)")
	flags.StringVar(&trackingTable, "tracking-table", "", "Tracking table name (or set TRACKING_TABLE)")
	flags.StringVar(&trackingSchema, "tracking-schema", "", "Tracking table schema (or set TRACKING_SCHEMA)")
	flags.StringVar(&output, "output", "text", "Output format: text, json")

	// サブコマンド登録
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(diffCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

// applyFlagOverrides は明示されたフラグで設定を上書きする。
// --migrations-dirのみ指定された場合、スナップショットとログの既定パスもそこに追従させる。
func applyFlagOverrides(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("database-url") {
		cfg.DatabaseURL = databaseURL
	}
	if flags.Changed("dialect") {
		cfg.Dialect = dialectName
	}
	if flags.Changed("migrations-dir") {
		cfg.MigrationsDir = migrationsDir
		if os.Getenv("SNAPSHOT_PATH") == "" {
			cfg.SnapshotPath = filepath.Join(migrationsDir, "schema_snapshot.json")
		}
		if os.Getenv("MIGRATION_LOG_PATH") == "" {
			cfg.MigrationLogPath = filepath.Join(migrationsDir, "migration_log")
		}
	}
	if flags.Changed("snapshot") {
		cfg.SnapshotPath = snapshotPath
	}
	if flags.Changed("log-file") {
		cfg.MigrationLogPath = logPath
	}
	if flags.Changed("tracking-table") {
		cfg.TrackingTable = trackingTable
	}
	if flags.Changed("tracking-schema") {
		cfg.TrackingSchema = trackingSchema
	}
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "migrator version %s\n", version)
		},
	}
}

func dialect() (domain.Dialect, error) {
	return domain.ParseDialect(cfg.Dialect)
}

func newGenerateService() (*usecase.GenerateService, error) {
	d, err := dialect()
	if err != nil {
		return nil, err
	}
	return usecase.NewGenerateService(
		repository.NewArtifactStore(cfg.MigrationsDir),
		repository.NewMigrationLog(cfg.MigrationLogPath),
		repository.NewSnapshotStore(cfg.SnapshotPath),
		d,
	), nil
}

func openDB() (*gorm.DB, domain.Dialect, error) {
	d, err := dialect()
	if err != nil {
		return nil, "", err
	}
	db, err := infra.NewDB(cfg.DatabaseURL, d, cfg)
	if err != nil {
		return nil, "", fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, d, nil
}

func newMigrationService() (*usecase.MigrationService, func(), error) {
	db, d, err := openDB()
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	svc := usecase.NewMigrationService(
		repository.NewMigrationRepository(db, d, cfg.TrackingSchema, cfg.TrackingTable),
		repository.NewArtifactStore(cfg.MigrationsDir),
		repository.NewMigrationLog(cfg.MigrationLogPath),
	)
	return svc, closeDB, nil
}

// readSnapshot はJSON形式の現在スキーマを読み込む。"-"は標準入力を表す。
func readSnapshot(cmd *cobra.Command, path string) (*domain.Snapshot, error) {
	if path == "" {
		return nil, fmt.Errorf("--schema is required")
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	var snapshot domain.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, domain.NewValidationError("schema %s is not valid JSON: %v", path, err)
	}
	return &snapshot, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
