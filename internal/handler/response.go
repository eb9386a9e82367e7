package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/directorio/internal/client"
	"github.com/hitoshi/directorio/internal/form"
	"github.com/hitoshi/directorio/internal/middleware"
	"github.com/hitoshi/directorio/internal/model"
	"github.com/hitoshi/directorio/internal/navigation"
	"github.com/hitoshi/directorio/internal/workflow"
)

// profileResponse はプロフィールのAPIレスポンス。
type profileResponse struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Age       int    `json:"age"`
	Specialty string `json:"specialty"`
	Initials  string `json:"initials"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// outcomeResponse は画面の処理結果のAPIレスポンス。
// navigationには処理後のナビゲーション状態を含める。
type outcomeResponse struct {
	Outcome      workflow.Kind       `json:"outcome"`
	Errors       form.Errors         `json:"errors,omitempty"`
	Alert        *workflow.Alert     `json:"alert,omitempty"`
	NavigateBack bool                `json:"navigateBack"`
	Profile      *profileResponse    `json:"profile,omitempty"`
	Navigation   navigation.Snapshot `json:"navigation"`
}

func toProfileResponse(record *model.ProfileRecord) *profileResponse {
	if record == nil {
		return nil
	}
	return &profileResponse{
		Name:      record.Name,
		Email:     record.Email,
		Age:       record.Age,
		Specialty: record.Specialty,
		Initials:  workflow.Initials(record.Name),
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

// outcomeStatus は処理結果の種別からHTTPステータスコードを決める。
func outcomeStatus(kind workflow.Kind) int {
	switch kind {
	case workflow.Success, workflow.PartialSuccess:
		return http.StatusOK
	case workflow.Invalid:
		return http.StatusUnprocessableEntity
	case workflow.Failed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeOutcome は処理結果を書き込む。送信処理の実行中は409を返す。
func writeOutcome(w http.ResponseWriter, out workflow.Outcome, snap navigation.Snapshot) {
	if out.Kind == workflow.Busy {
		middleware.WriteErrorResponse(w, http.StatusConflict, model.NewSubmissionInProgressError())
		return
	}
	writeJSON(w, outcomeStatus(out.Kind), outcomeResponse{
		Outcome:      out.Kind,
		Errors:       out.Errors,
		Alert:        out.Alert,
		NavigateBack: out.NavigateBack,
		Profile:      toProfileResponse(out.Record),
		Navigation:   snap,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeBody はリクエストボディをdstに読み込む。失敗した場合は400を書き込んでfalseを返す。
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("JSONの解析に失敗しました"))
		return false
	}
	return true
}

const maxBodyBytes = 64 << 10

// handleServiceError はクライアントコアから返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error, screen navigation.Screen) {
	switch {
	case errors.Is(err, navigation.ErrInitializing):
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewNavigationNotReadyError())
	case errors.Is(err, navigation.ErrNotReachable), errors.Is(err, client.ErrNoEditSession):
		middleware.WriteErrorResponse(w, http.StatusConflict, model.NewScreenNotReachableError(string(screen)))
	case errors.Is(err, navigation.ErrNoBack):
		middleware.WriteErrorResponse(w, http.StatusConflict, model.NewNoPreviousScreenError())
	default:
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
			return
		}
		slog.Error("internal server error", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}
