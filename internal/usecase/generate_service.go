package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"schema-migrator/internal/domain"
	"schema-migrator/internal/planner"
	"schema-migrator/internal/schemadiff"
	"schema-migrator/internal/sqlgen"
)

// SnapshotStore は最後にマイグレーションしたスナップショットを保持するインターフェース。
type SnapshotStore interface {
	Load(ctx context.Context) (*domain.Snapshot, error)
	Save(ctx context.Context, snapshot *domain.Snapshot, createdAt time.Time) error
}

// GenerateOptions は成果物生成のオプション。
type GenerateOptions struct {
	Name     string
	Renames  domain.RenameMappings
	Prompter schemadiff.RenamePrompter
}

// GenerateResult は成果物生成の結果。
type GenerateResult struct {
	Migration *domain.Migration
	Diff      *domain.DiffResult
	Plan      *planner.MigrationPlan
}

// GenerateService はスナップショットの差分から成果物を生成し、ログを進める。
type GenerateService struct {
	artifacts ArtifactStore
	log       MigrationLog
	snapshots SnapshotStore
	dialect   domain.Dialect
	now       func() time.Time
}

// NewGenerateService は新しいGenerateServiceを生成する。
func NewGenerateService(artifacts ArtifactStore, log MigrationLog, snapshots SnapshotStore, dialect domain.Dialect) *GenerateService {
	return &GenerateService{
		artifacts: artifacts,
		log:       log,
		snapshots: snapshots,
		dialect:   dialect,
		now:       time.Now,
	}
}

// Diff は保存済みスナップショットとcurrentの差分を計算し、リネームを調停する。
// currentは正規化される。
func (s *GenerateService) Diff(ctx context.Context, current *domain.Snapshot, opts GenerateOptions) (*domain.DiffResult, error) {
	current.Normalize()
	prev, err := s.snapshots.Load(ctx)
	if err != nil {
		return nil, err
	}

	diff := schemadiff.Diff(prev, current)
	reconciled, err := schemadiff.Reconcile(diff, opts.Renames)
	if err != nil {
		return nil, err
	}
	if opts.Prompter != nil {
		if reconciled, err = schemadiff.ResolveRenames(reconciled, opts.Prompter); err != nil {
			return nil, err
		}
	}
	return reconciled, nil
}

// Generate は差分から成果物を書き出し、ログに追記してからスナップショットを更新する。
// 差分が無い場合はErrNoChangesを返し、何も書き込まない。
func (s *GenerateService) Generate(ctx context.Context, current *domain.Snapshot, opts GenerateOptions) (*GenerateResult, error) {
	if opts.Name == "" {
		return nil, domain.NewValidationError("migration name is required")
	}
	ctx, span := tracer.Start(ctx, "GenerateMigration", trace.WithAttributes(
		attribute.String("migration.name", opts.Name),
		attribute.String("db.system", string(s.dialect)),
	))
	defer span.End()

	diff, err := s.Diff(ctx, current, opts)
	if err != nil {
		return nil, err
	}
	plan, err := planner.Plan(diff, s.dialect)
	if err != nil {
		return nil, err
	}
	if plan.IsEmpty() {
		return nil, domain.ErrNoChanges
	}

	up, err := sqlgen.Render(plan.Up, plan.Dialect)
	if err != nil {
		return nil, fmt.Errorf("compiling migration: %w", err)
	}

	entries, err := s.log.Entries(ctx)
	if err != nil {
		return nil, err
	}
	last := ""
	if len(entries) > 0 {
		last = entries[len(entries)-1].Identifier
	}

	now := s.now()
	identifier := NextIdentifier(now, opts.Name, last)
	sql := sqlgen.RenderArtifact(opts.Name, now, up)

	down, err := sqlgen.Render(plan.Down, plan.Dialect)
	if err != nil {
		slog.WarnContext(ctx, "down migration could not be compiled",
			"operation", "generate",
			"identifier", identifier,
			"error", err,
		)
		down = fmt.Sprintf("-- down migration unavailable: %v\n", err)
	}
	downSQL := sqlgen.RenderArtifact(opts.Name+" (down)", now, down)

	m, err := s.artifacts.Write(ctx, identifier, sql, downSQL)
	if err != nil {
		return nil, err
	}
	if err := s.log.Append(ctx, domain.LogEntry{Identifier: m.Identifier, Checksum: m.Checksum}); err != nil {
		// ログに無い成果物を残さない
		if rmErr := s.artifacts.Remove(ctx, m.Identifier); rmErr != nil {
			slog.ErrorContext(ctx, "failed to remove unlogged migration artifact",
				"operation", "generate",
				"identifier", m.Identifier,
				"error", rmErr,
			)
		}
		return nil, fmt.Errorf("appending to migration log: %w", err)
	}
	if err := s.snapshots.Save(ctx, current, now); err != nil {
		return nil, fmt.Errorf("saving snapshot: %w", err)
	}

	span.SetAttributes(
		attribute.String("migration.identifier", m.Identifier),
		attribute.Int("migration.operations", len(plan.Up)),
	)
	slog.InfoContext(ctx, "migration generated",
		"operation", "generate",
		"identifier", m.Identifier,
		"operations", len(plan.Up),
	)
	return &GenerateResult{Migration: m, Diff: diff, Plan: plan}, nil
}

// Init は成果物を作らずにスナップショットを保存する（既存データベースの取り込み用）。
func (s *GenerateService) Init(ctx context.Context, current *domain.Snapshot) error {
	current.Normalize()
	return s.snapshots.Save(ctx, current, s.now())
}

// Rehash はディスク上のSQLからログのチェックサムを再計算する。
// 意図的に手で編集した成果物を受け入れるための唯一の書き換え経路。
// チェックサムが変わった識別子を返す。
func (s *GenerateService) Rehash(ctx context.Context) ([]string, error) {
	entries, err := s.log.Entries(ctx)
	if err != nil {
		return nil, err
	}

	var changed []string
	updated := make([]domain.LogEntry, len(entries))
	for i, e := range entries {
		m, err := s.artifacts.Read(ctx, e.Identifier)
		if err != nil {
			return nil, fmt.Errorf("rehashing %s: %w", e.Identifier, err)
		}
		updated[i] = domain.LogEntry{Identifier: e.Identifier, Checksum: m.Checksum}
		if m.Checksum != e.Checksum {
			changed = append(changed, e.Identifier)
		}
	}
	if len(changed) == 0 {
		return nil, nil
	}

	if err := s.log.Rewrite(ctx, updated); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "migration log rehashed",
		"operation", "rehash",
		"changed", len(changed),
	)
	return changed, nil
}
