package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"schema-migrator/internal/domain"
)

// SnapshotVersion はスナップショットファイルの現行フォーマットバージョン。
const SnapshotVersion = 1

// snapshotFile はスナップショットファイルの形式。
type snapshotFile struct {
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"createdAt"`
	Schema    domain.Snapshot `json:"schema"`
}

// SnapshotStore は最後にマイグレーションしたスナップショットを保持する。
type SnapshotStore struct {
	path string
}

// NewSnapshotStore は新しいSnapshotStoreを生成する。
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Load はスナップショットを読み込む。ファイルが無い場合はnil（空のデータベース）を返す。
// 未知のバージョンは推測せずに拒否する。
func (s *SnapshotStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to read snapshot",
			"operation", "load_snapshot",
			"path", s.path,
			"error", err,
		)
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("malformed snapshot %s: %v", s.path, err)}
	}
	if file.Version != SnapshotVersion {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("%s: %d in %s", domain.ErrUnsupportedSnapshotVersion, file.Version, s.path),
			Err:     domain.ErrUnsupportedSnapshotVersion,
		}
	}
	return &file.Schema, nil
}

// Save はスナップショットをアトミックに上書きする。
func (s *SnapshotStore) Save(ctx context.Context, snapshot *domain.Snapshot, createdAt time.Time) error {
	file := snapshotFile{
		Version:   SnapshotVersion,
		CreatedAt: createdAt.UTC(),
		Schema:    *snapshot,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := writeFileAtomic(s.path, append(data, '\n'), 0o644); err != nil {
		slog.ErrorContext(ctx, "failed to write snapshot",
			"operation", "save_snapshot",
			"path", s.path,
			"error", err,
		)
		return err
	}
	return nil
}
