package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"schema-migrator/internal/domain"
)

const (
	migrationFileName = "migration.sql"
	downFileName      = "down.sql"
)

// identifierRegex は成果物ディレクトリ名の形式: {14桁のタイムスタンプ}_{名前}
var identifierRegex = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)$`)

// ParseIdentifier は識別子からタイムスタンプと名前を抽出する。
func ParseIdentifier(identifier string) (timestamp, name string, err error) {
	m := identifierRegex.FindStringSubmatch(identifier)
	if m == nil {
		return "", "", fmt.Errorf("%w: %s (expected format: {yyyymmddhhmmss}_{name})", domain.ErrInvalidMigrationFile, identifier)
	}
	return m[1], m[2], nil
}

// ArtifactStore はマイグレーション成果物ディレクトリを管理する。
type ArtifactStore struct {
	dir string
}

// NewArtifactStore は新しいArtifactStoreを生成する。
func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{dir: dir}
}

// Dir は成果物ディレクトリのパスを返す。
func (s *ArtifactStore) Dir() string {
	return s.dir
}

// List はディスク上の全成果物を識別子の昇順で返す。
func (s *ArtifactStore) List(ctx context.Context) ([]*domain.Migration, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []*domain.Migration
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if !identifierRegex.MatchString(entry.Name()) {
			slog.WarnContext(ctx, "skipping directory that is not a migration",
				"operation", "list_artifacts",
				"dir", entry.Name(),
			)
			continue
		}
		m, err := s.Read(ctx, entry.Name())
		if errors.Is(err, domain.ErrMigrationFileNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, m)
	}

	// 識別子の辞書順 = 生成順
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Identifier < migrations[j].Identifier
	})

	return migrations, nil
}

// Read は識別子の成果物をディスクから読み込み、チェックサムを再計算する。
func (s *ArtifactStore) Read(ctx context.Context, identifier string) (*domain.Migration, error) {
	_, name, err := ParseIdentifier(identifier)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(s.dir, identifier, migrationFileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrMigrationFileNotFound, path)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to read migration file",
			"operation", "read_artifact",
			"identifier", identifier,
			"file_path", path,
			"error", err,
		)
		return nil, fmt.Errorf("failed to read migration file: %w", err)
	}

	sql := string(data)
	return &domain.Migration{
		Identifier: identifier,
		Name:       name,
		SQL:        sql,
		Checksum:   domain.Checksum(sql),
		FilePath:   path,
		Status:     domain.MigrationStatusPending,
	}, nil
}

// Write は新しい成果物ディレクトリを作成してSQLを書き込む。既存の識別子は上書きしない。
func (s *ArtifactStore) Write(ctx context.Context, identifier, sql, downSQL string) (*domain.Migration, error) {
	_, name, err := ParseIdentifier(identifier)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(s.dir, identifier)
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating migrations directory: %w", err)
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		slog.ErrorContext(ctx, "failed to create migration directory",
			"operation", "write_artifact",
			"identifier", identifier,
			"error", err,
		)
		return nil, fmt.Errorf("creating migration directory: %w", err)
	}

	path := filepath.Join(dir, migrationFileName)
	if err := writeFileAtomic(path, []byte(sql), 0o644); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	if downSQL != "" {
		if err := writeFileAtomic(filepath.Join(dir, downFileName), []byte(downSQL), 0o644); err != nil {
			_ = os.RemoveAll(dir)
			return nil, err
		}
	}

	return &domain.Migration{
		Identifier: identifier,
		Name:       name,
		SQL:        sql,
		Checksum:   domain.Checksum(sql),
		FilePath:   path,
		Status:     domain.MigrationStatusPending,
	}, nil
}

// Remove は成果物ディレクトリを削除する。存在しなければ何もしない。
func (s *ArtifactStore) Remove(ctx context.Context, identifier string) error {
	if _, _, err := ParseIdentifier(identifier); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.dir, identifier)); err != nil {
		slog.ErrorContext(ctx, "failed to remove migration directory",
			"operation", "remove_artifact",
			"identifier", identifier,
			"error", err,
		)
		return fmt.Errorf("removing migration directory: %w", err)
	}
	return nil
}
