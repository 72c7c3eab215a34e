// Package handler はHTTPハンドラを提供する。
package handler

import (
	"errors"
	"net/http"
	"time"

	"schema-migrator/internal/domain"
	"schema-migrator/internal/middleware"
	"schema-migrator/internal/usecase"
	"schema-migrator/pkg/httputil"
)

// MigrationHandler はマイグレーション状況の参照と適用のHTTPハンドラを提供する。
type MigrationHandler struct {
	service *usecase.MigrationService
}

// NewMigrationHandler は新しいMigrationHandlerを生成する。
func NewMigrationHandler(service *usecase.MigrationService) *MigrationHandler {
	return &MigrationHandler{service: service}
}

// MigrationResponse はマイグレーションのレスポンス形式。
type MigrationResponse struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Checksum   string `json:"checksum"`
	Status     string `json:"status"`
	AppliedAt  string `json:"applied_at,omitempty"`
	SQL        string `json:"sql,omitempty"`
}

// MigrationListResponse はマイグレーション一覧のレスポンス形式。
type MigrationListResponse struct {
	Migrations []MigrationResponse `json:"migrations"`
}

// PreviewResponse は適用前確認のレスポンス形式。
type PreviewResponse struct {
	Pending        []MigrationResponse `json:"pending"`
	AlreadyApplied []string            `json:"already_applied"`
	Unlogged       []string            `json:"unlogged"`
}

// ApplyRequest は適用リクエストの形式。
type ApplyRequest struct {
	MarkApplied bool `json:"mark_applied"`
}

// ApplyResponse は適用結果のレスポンス形式。
type ApplyResponse struct {
	Applied        []MigrationResponse `json:"applied"`
	AlreadyApplied []string            `json:"already_applied"`
	Unlogged       []string            `json:"unlogged"`
	MarkedApplied  bool                `json:"marked_applied"`
}

func toResponse(m *domain.Migration, withSQL bool) MigrationResponse {
	res := MigrationResponse{
		Identifier: m.Identifier,
		Name:       m.Name,
		Checksum:   m.Checksum,
		Status:     string(m.Status),
	}
	if res.Status == "" {
		res.Status = string(domain.MigrationStatusPending)
	}
	if m.AppliedAt != nil {
		res.AppliedAt = m.AppliedAt.UTC().Format(time.RFC3339)
	}
	if withSQL {
		res.SQL = m.SQL
	}
	return res
}

func toResponses(ms []*domain.Migration, withSQL bool) []MigrationResponse {
	out := make([]MigrationResponse, 0, len(ms))
	for _, m := range ms {
		out = append(out, toResponse(m, withSQL))
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ListMigrations は全成果物の適用状況を返す。
func (h *MigrationHandler) ListMigrations(w http.ResponseWriter, r *http.Request) {
	migrations, err := h.service.GetMigrationStatus(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, MigrationListResponse{Migrations: toResponses(migrations, false)})
}

// PreviewMigrations は未適用マイグレーションをSQL本文付きで返す。データベースは変更しない。
func (h *MigrationHandler) PreviewMigrations(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Preview(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, PreviewResponse{
		Pending:        toResponses(result.Pending, true),
		AlreadyApplied: nonNil(result.AlreadyApplied),
		Unlogged:       nonNil(result.Unlogged),
	})
}

// ApplyMigrations は未適用マイグレーションを適用する。
func (h *MigrationHandler) ApplyMigrations(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if err := httputil.DecodeOptionalJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	operation := "APPLY_MIGRATIONS"
	if req.MarkApplied {
		operation = "MARK_APPLIED"
	}

	result, err := h.service.ApplyMigrations(r.Context(), usecase.ApplyOptions{MarkApplied: req.MarkApplied})
	if err != nil {
		var execErr *domain.ExecutionError
		var tampered *domain.ChecksumMismatchError
		identifier := ""
		switch {
		case errors.As(err, &execErr):
			identifier = execErr.Identifier
		case errors.As(err, &tampered):
			identifier = tampered.Identifier
		}
		middleware.WriteAuditLog(r.Context(), operation, identifier, middleware.ResultFailed)
		writeServiceError(w, err)
		return
	}

	for _, m := range result.Applied {
		middleware.WriteAuditLog(r.Context(), operation, m.Identifier, middleware.ResultSuccess)
	}
	httputil.JSON(w, http.StatusOK, ApplyResponse{
		Applied:        toResponses(result.Applied, false),
		AlreadyApplied: nonNil(result.AlreadyApplied),
		Unlogged:       nonNil(result.Unlogged),
		MarkedApplied:  result.MarkedApplied,
	})
}

// writeServiceError はサービス層のエラーをHTTPステータスに対応付ける。
func writeServiceError(w http.ResponseWriter, err error) {
	var coherence *domain.CoherenceError
	switch {
	case errors.As(err, &coherence):
		httputil.ErrorWithDetails(w, http.StatusConflict, "INCOHERENT_STATE",
			"migration log, artifacts and database disagree", coherence.Violations)
	case errors.Is(err, domain.ErrChecksumMismatch):
		httputil.Error(w, http.StatusConflict, "CHECKSUM_MISMATCH", err.Error())
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidMigrationFile):
		httputil.Error(w, http.StatusBadRequest, "INVALID_MIGRATION", err.Error())
	case errors.Is(err, domain.ErrMigrationFileNotFound):
		httputil.Error(w, http.StatusNotFound, "MIGRATION_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrMigrationFailed):
		httputil.Error(w, http.StatusInternalServerError, "MIGRATION_FAILED", err.Error())
	default:
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
