// Package httputil はJSONのリクエスト読み取りとレスポンス生成のユーティリティを提供する。
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// maxBodyBytes はリクエストボディの上限。
const maxBodyBytes = 1 << 20

// ErrorResponse はエラーレスポンスの形式。Detailsは整合性違反の一覧などを運ぶ。
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// DecodeOptionalJSON はボディをdstに読み込む。空のボディはエラーにせずdstをそのまま残す。
// 未知のフィールドは拒否する。
func DecodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}

// JSON はstatusとともにdataをJSONで書き出す。
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// ヘッダーは送信済み
		slog.Error("failed to encode response", "status", status, "error", err)
	}
}

// Error はコードとメッセージだけのエラーレスポンスを返す。
func Error(w http.ResponseWriter, status int, code, message string) {
	ErrorWithDetails(w, status, code, message, nil)
}

// ErrorWithDetails は詳細情報付きのエラーレスポンスを返す。
func ErrorWithDetails(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, ErrorResponse{Code: code, Message: message, Details: details})
}
