package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"schema-migrator/internal/domain"
	"schema-migrator/internal/sqlgen"
)

var tracer = otel.Tracer("schema-migrator/internal/usecase")

// MigrationRepository はデータベース上のマイグレーション適用履歴を管理するリポジトリのインターフェース。
type MigrationRepository interface {
	EnsureTable(ctx context.Context) error
	HasTable(ctx context.Context) (bool, error)
	FindAllApplied(ctx context.Context) ([]*domain.AppliedMigration, error)
	ApplyMigration(ctx context.Context, m *domain.Migration, statements []string) error
	RecordMigration(ctx context.Context, m *domain.Migration, steps int) error
}

// ArtifactStore はディスク上の成果物を扱うインターフェース。
type ArtifactStore interface {
	List(ctx context.Context) ([]*domain.Migration, error)
	Read(ctx context.Context, identifier string) (*domain.Migration, error)
	Write(ctx context.Context, identifier, sql, downSQL string) (*domain.Migration, error)
	Remove(ctx context.Context, identifier string) error
}

// MigrationLog は追記専用のマイグレーションログのインターフェース。
type MigrationLog interface {
	Entries(ctx context.Context) ([]domain.LogEntry, error)
	Append(ctx context.Context, entry domain.LogEntry) error
	Rewrite(ctx context.Context, entries []domain.LogEntry) error
}

// ConfirmFunc は検証後・実行前に未適用一覧を確認するコールバック。falseで取り消す。
type ConfirmFunc func(ctx context.Context, pending []*domain.Migration) (bool, error)

// ApplyOptions は適用時のオプション。
type ApplyOptions struct {
	// MarkApplied はSQLを実行せずに、チェックサム検証と記録だけを行う。
	// 実際のデータベース状態が成果物と一致することは検証しない（運用者を信頼する）。
	MarkApplied bool
	Confirm     ConfirmFunc
}

// ApplyResult は適用結果。
type ApplyResult struct {
	Applied        []*domain.Migration `json:"applied"`
	AlreadyApplied []string            `json:"already_applied"`
	// Unlogged はログに無いため実行しなかった成果物。
	Unlogged      []string `json:"unlogged,omitempty"`
	MarkedApplied bool     `json:"marked_applied"`
}

// PreviewResult は適用前の確認結果。
type PreviewResult struct {
	Pending        []*domain.Migration `json:"pending"`
	AlreadyApplied []string            `json:"already_applied"`
	Unlogged       []string            `json:"unlogged,omitempty"`
}

// MigrationService はマイグレーション適用のビジネスロジックを提供する。
type MigrationService struct {
	repo      MigrationRepository
	artifacts ArtifactStore
	log       MigrationLog
}

// NewMigrationService は新しいMigrationServiceを生成する。
func NewMigrationService(repo MigrationRepository, artifacts ArtifactStore, log MigrationLog) *MigrationService {
	return &MigrationService{
		repo:      repo,
		artifacts: artifacts,
		log:       log,
	}
}

// state はログ・ディスク・データベースの状態。
type state struct {
	log     []domain.LogEntry
	disk    []*domain.Migration
	applied []*domain.AppliedMigration
}

func (st *state) appliedSet() map[string]*domain.AppliedMigration {
	set := make(map[string]*domain.AppliedMigration, len(st.applied))
	for _, a := range st.applied {
		set[a.Identifier] = a
	}
	return set
}

// pending は未適用の成果物を識別子の昇順で返す。
// ログに無い成果物は実行対象にせず、unloggedとして別に返す。
func (st *state) pending() (pending []*domain.Migration, alreadyApplied, unlogged []string) {
	set := st.appliedSet()
	logged := make(map[string]struct{}, len(st.log))
	for _, e := range st.log {
		logged[e.Identifier] = struct{}{}
	}
	for _, m := range st.disk {
		if _, ok := set[m.Identifier]; ok {
			alreadyApplied = append(alreadyApplied, m.Identifier)
			continue
		}
		if _, ok := logged[m.Identifier]; !ok {
			unlogged = append(unlogged, m.Identifier)
			continue
		}
		pending = append(pending, m)
	}
	return pending, alreadyApplied, unlogged
}

func warnUnlogged(ctx context.Context, operation string, unlogged []string) {
	for _, id := range unlogged {
		slog.WarnContext(ctx, "skipping migration artifact that is not in the migration log",
			"operation", operation,
			"identifier", id,
		)
	}
}

// loadState は各状態を読み込む。ensureがfalseの場合はトラッキングテーブルを作成せず、
// 存在しなければ何も適用されていないものとして扱う。
func (s *MigrationService) loadState(ctx context.Context, ensure bool) (*state, error) {
	if ensure {
		if err := s.repo.EnsureTable(ctx); err != nil {
			return nil, fmt.Errorf("ensuring tracking table: %w", err)
		}
	}

	entries, err := s.log.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading migration log: %w", err)
	}
	disk, err := s.artifacts.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to scan migration artifacts",
			"operation", "load_state",
			"error", err,
		)
		return nil, err
	}

	st := &state{log: entries, disk: disk}

	exists := true
	if !ensure {
		if exists, err = s.repo.HasTable(ctx); err != nil {
			return nil, fmt.Errorf("checking tracking table: %w", err)
		}
	}
	if exists {
		if st.applied, err = s.repo.FindAllApplied(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to fetch applied migrations",
				"operation", "load_state",
				"error", err,
			)
			return nil, fmt.Errorf("failed to fetch applied migrations: %w", err)
		}
	}
	return st, nil
}

// ValidateCoherence はログ・ディスク・データベースの整合性を検証し、全ての違反をまとめて返す。
func ValidateCoherence(log []domain.LogEntry, disk []*domain.Migration, applied []*domain.AppliedMigration) []domain.Violation {
	var violations []domain.Violation

	onDisk := make(map[string]struct{}, len(disk))
	for _, m := range disk {
		onDisk[m.Identifier] = struct{}{}
	}
	logged := make(map[string]string, len(log))
	for _, e := range log {
		logged[e.Identifier] = e.Checksum
		if _, ok := onDisk[e.Identifier]; !ok {
			violations = append(violations, domain.Violation{
				Kind:       domain.ViolationMissingFromDisk,
				Identifier: e.Identifier,
				Detail:     "logged migration has no artifact on disk",
			})
		}
	}

	appliedSet := make(map[string]*domain.AppliedMigration, len(applied))
	for _, a := range applied {
		appliedSet[a.Identifier] = a
		if _, ok := logged[a.Identifier]; !ok {
			violations = append(violations, domain.Violation{
				Kind:       domain.ViolationMissingFromLog,
				Identifier: a.Identifier,
				Detail:     "migration applied to the database is not in the migration log",
			})
		}
	}

	// 適用済みはログの連続した先頭部分でなければならない
	last := -1
	for i, e := range log {
		if _, ok := appliedSet[e.Identifier]; ok {
			last = i
		}
	}
	for i := 0; i < last; i++ {
		if _, ok := appliedSet[log[i].Identifier]; !ok {
			violations = append(violations, domain.Violation{
				Kind:       domain.ViolationOrderMismatch,
				Identifier: log[i].Identifier,
				Detail:     fmt.Sprintf("not applied, but later migration %s is", log[last].Identifier),
			})
		}
	}

	for _, e := range log {
		a, ok := appliedSet[e.Identifier]
		if ok && a.Checksum != e.Checksum {
			violations = append(violations, domain.Violation{
				Kind:       domain.ViolationChecksumMismatch,
				Identifier: e.Identifier,
				Detail:     fmt.Sprintf("database recorded %s, log recorded %s", a.Checksum, e.Checksum),
			})
		}
	}

	return violations
}

func (s *MigrationService) validate(ctx context.Context, st *state) error {
	violations := ValidateCoherence(st.log, st.disk, st.applied)
	if len(violations) == 0 {
		return nil
	}
	slog.ErrorContext(ctx, "migration state is not coherent",
		"operation", "validate_coherence",
		"violations", len(violations),
	)
	return &domain.CoherenceError{Violations: violations}
}

// ApplyMigrations は整合性を検証した後、未適用マイグレーションを識別子順に1つずつ実行する。
// 失敗した時点で止まり、それまでに成功したものは適用済みのまま残る。
func (s *MigrationService) ApplyMigrations(ctx context.Context, opts ApplyOptions) (*ApplyResult, error) {
	st, err := s.loadState(ctx, true)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, st); err != nil {
		return nil, err
	}

	pending, alreadyApplied, unlogged := st.pending()
	warnUnlogged(ctx, "apply_migrations", unlogged)
	result := &ApplyResult{AlreadyApplied: alreadyApplied, Unlogged: unlogged, MarkedApplied: opts.MarkApplied}
	if len(pending) == 0 {
		return result, nil
	}

	if opts.Confirm != nil {
		ok, err := opts.Confirm(ctx, pending)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrApplyCancelled
		}
	}

	logged := make(map[string]string, len(st.log))
	for _, e := range st.log {
		logged[e.Identifier] = e.Checksum
	}

	for _, p := range pending {
		m, err := s.applyOne(ctx, p.Identifier, logged[p.Identifier], opts.MarkApplied)
		if err != nil {
			return result, err
		}
		result.Applied = append(result.Applied, m)
	}

	return result, nil
}

// applyOne は1つの成果物を実行または記録する。expectedはログに記録されたチェックサム。
func (s *MigrationService) applyOne(ctx context.Context, identifier, expected string, markApplied bool) (*domain.Migration, error) {
	ctx, span := tracer.Start(ctx, "ApplyMigration", trace.WithAttributes(
		attribute.String("migration.identifier", identifier),
		attribute.Bool("migration.mark_applied", markApplied),
	))
	defer span.End()

	// 実行直前にディスクから読み直してチェックサムを再計算する
	m, err := s.artifacts.Read(ctx, identifier)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return nil, err
	}
	if expected != m.Checksum {
		slog.ErrorContext(ctx, "tampered migration",
			"operation", "apply_migrations",
			"identifier", m.Identifier,
		)
		err := &domain.ChecksumMismatchError{Identifier: m.Identifier, Expected: expected, Actual: m.Checksum}
		span.RecordError(err)
		span.SetStatus(codes.Error, "checksum mismatch")
		return nil, err
	}

	statements := sqlgen.SplitStatements(m.SQL)
	span.SetAttributes(attribute.Int("migration.steps", len(statements)))
	if markApplied {
		err = s.repo.RecordMigration(ctx, m, len(statements))
	} else {
		err = s.repo.ApplyMigration(ctx, m, statements)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to apply migration",
			"operation", "apply_migrations",
			"identifier", m.Identifier,
			"error", err,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "execution failed")
		return nil, &domain.ExecutionError{Identifier: m.Identifier, Err: err}
	}

	m.Status = domain.MigrationStatusApplied
	slog.InfoContext(ctx, "migration applied",
		"operation", "apply_migrations",
		"identifier", m.Identifier,
		"steps", len(statements),
		"mark_applied", markApplied,
	)
	return m, nil
}

// Preview は読み取りのみで整合性を検証し、未適用の成果物をSQL本文付きで返す。
func (s *MigrationService) Preview(ctx context.Context) (*PreviewResult, error) {
	st, err := s.loadState(ctx, false)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, st); err != nil {
		return nil, err
	}
	pending, alreadyApplied, unlogged := st.pending()
	warnUnlogged(ctx, "preview_migrations", unlogged)
	return &PreviewResult{Pending: pending, AlreadyApplied: alreadyApplied, Unlogged: unlogged}, nil
}

// GetMigrationStatus は現在のマイグレーション状況を取得する。
func (s *MigrationService) GetMigrationStatus(ctx context.Context) ([]*domain.Migration, error) {
	st, err := s.loadState(ctx, false)
	if err != nil {
		return nil, err
	}

	appliedMap := st.appliedSet()
	for _, m := range st.disk {
		if applied, exists := appliedMap[m.Identifier]; exists {
			m.Status = domain.MigrationStatusApplied
			m.AppliedAt = applied.FinishedAt
		}
	}

	return st.disk, nil
}
