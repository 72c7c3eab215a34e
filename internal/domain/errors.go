package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation は入力・設定の検証エラー。
	ErrValidation = errors.New("validation error")

	// ErrCoherence はログ・ディスク・データベース間の不整合エラー。
	ErrCoherence = errors.New("migration state is not coherent")

	// ErrChecksumMismatch は記録済みチェックサムと成果物の内容が一致しない場合のエラー。
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrMigrationFileNotFound はマイグレーションファイルが見つからない場合のエラー。
	ErrMigrationFileNotFound = errors.New("migration file not found")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")

	// ErrUnsupportedSnapshotVersion はスナップショットのバージョンが未知の場合のエラー。
	ErrUnsupportedSnapshotVersion = errors.New("unsupported snapshot version")

	// ErrUnsupportedOperation は方言が安全に表現できない操作の場合のエラー。
	ErrUnsupportedOperation = errors.New("operation not supported by dialect")

	// ErrNoChanges はスキーマに差分が無い場合のエラー。
	ErrNoChanges = errors.New("no schema changes")

	// ErrApplyCancelled は確認コールバックにより適用が取り消された場合のエラー。
	ErrApplyCancelled = errors.New("apply cancelled")
)

// ValidationError は検証エラーの詳細を表す。
type ValidationError struct {
	Message string
	Err     error // 原因となるセンチネルエラー（任意）
}

// NewValidationError は書式付きのValidationErrorを生成する。
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ViolationKind は整合性違反の種類。
type ViolationKind string

const (
	ViolationMissingFromDisk  ViolationKind = "missing_from_disk"
	ViolationMissingFromLog   ViolationKind = "missing_from_log"
	ViolationOrderMismatch    ViolationKind = "order_mismatch"
	ViolationChecksumMismatch ViolationKind = "checksum_mismatch"
)

// Violation は単一の整合性違反を表す。
type Violation struct {
	Kind       ViolationKind `json:"kind"`
	Identifier string        `json:"identifier"`
	Detail     string        `json:"detail"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s (%s)", v.Kind, v.Identifier, v.Detail)
}

// CoherenceError は検出された全ての整合性違反をまとめて保持する。
type CoherenceError struct {
	Violations []Violation
}

func (e *CoherenceError) Error() string {
	lines := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		lines[i] = v.String()
	}
	return fmt.Sprintf("%s: %d violation(s): %s", ErrCoherence, len(e.Violations), strings.Join(lines, "; "))
}

func (e *CoherenceError) Is(target error) bool {
	return target == ErrCoherence
}

// ChecksumMismatchError は改ざんされた成果物を表す。
type ChecksumMismatchError struct {
	Identifier string
	Expected   string
	Actual     string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("tampered migration %s: %s (logged %s, on disk %s); run rehash if the edit was intentional",
		e.Identifier, ErrChecksumMismatch, e.Expected, e.Actual)
}

func (e *ChecksumMismatchError) Is(target error) bool {
	return target == ErrChecksumMismatch
}

// ExecutionError はデータベースでのDDL実行失敗を表す。
type ExecutionError struct {
	Identifier string
	Err        error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrMigrationFailed, e.Identifier, e.Err)
}

func (e *ExecutionError) Is(target error) bool {
	return target == ErrMigrationFailed
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
