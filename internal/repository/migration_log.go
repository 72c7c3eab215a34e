package repository

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"schema-migrator/internal/domain"
)

const logHeader = `# Migration log. Append-only: one "<identifier> <sha256>" per generated migration.
# Do not edit by hand; use "migrator migrate rehash" after an intentional change to a migration.
`

// MigrationLog は生成済み成果物の識別子とチェックサムを記録する追記専用の台帳。
type MigrationLog struct {
	path string
}

// NewMigrationLog は新しいMigrationLogを生成する。
func NewMigrationLog(path string) *MigrationLog {
	return &MigrationLog{path: path}
}

// Entries はログの全エントリを記録順に返す。ファイルが無い場合は空を返す。
func (l *MigrationLog) Entries(ctx context.Context) ([]domain.LogEntry, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to read migration log",
			"operation", "read_migration_log",
			"path", l.path,
			"error", err,
		)
		return nil, fmt.Errorf("reading migration log: %w", err)
	}
	return parseLog(data)
}

func parseLog(data []byte) ([]domain.LogEntry, error) {
	var entries []domain.LogEntry
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: migration log line %d: expected \"<identifier> <checksum>\"", domain.ErrInvalidMigrationFile, lineNo)
		}
		if _, dup := seen[fields[0]]; dup {
			return nil, fmt.Errorf("%w: migration log line %d: duplicate identifier %s", domain.ErrInvalidMigrationFile, lineNo, fields[0])
		}
		seen[fields[0]] = struct{}{}
		entries = append(entries, domain.LogEntry{Identifier: fields[0], Checksum: fields[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning migration log: %w", err)
	}
	return entries, nil
}

// Append はエントリを1行追記する。ファイルが無ければヘッダー付きで作成する。
func (l *MigrationLog) Append(ctx context.Context, entry domain.LogEntry) error {
	entries, err := l.Entries(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Identifier == entry.Identifier {
			return fmt.Errorf("%w: identifier %s is already logged", domain.ErrInvalidMigrationFile, entry.Identifier)
		}
	}

	_, statErr := os.Stat(l.path)
	isNew := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open migration log",
			"operation", "append_migration_log",
			"path", l.path,
			"error", err,
		)
		return fmt.Errorf("opening migration log: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	if isNew {
		sb.WriteString(logHeader)
	}
	fmt.Fprintf(&sb, "%s %s\n", entry.Identifier, entry.Checksum)
	if _, err := f.WriteString(sb.String()); err != nil {
		return fmt.Errorf("appending to migration log: %w", err)
	}
	return f.Sync()
}

// Rewrite はログ全体を書き換える。チェックサムの再計算（rehash）専用で、
// エントリの順序と識別子は変更してはならない。
func (l *MigrationLog) Rewrite(ctx context.Context, entries []domain.LogEntry) error {
	current, err := l.Entries(ctx)
	if err != nil {
		return err
	}
	if len(current) != len(entries) {
		return fmt.Errorf("%w: rewrite must keep the %d existing entries", domain.ErrInvalidMigrationFile, len(current))
	}
	for i := range current {
		if current[i].Identifier != entries[i].Identifier {
			return fmt.Errorf("%w: rewrite must keep entry order (position %d: %s != %s)",
				domain.ErrInvalidMigrationFile, i, current[i].Identifier, entries[i].Identifier)
		}
	}

	var sb strings.Builder
	sb.WriteString(logHeader)
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s %s\n", e.Identifier, e.Checksum)
	}
	return writeFileAtomic(l.path, []byte(sb.String()), 0o644)
}
