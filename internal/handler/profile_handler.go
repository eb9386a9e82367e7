package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/directorio/internal/form"
	"github.com/hitoshi/directorio/internal/navigation"
	"github.com/hitoshi/directorio/internal/workflow"
)

// ProfileCore はプロフィールハンドラーが必要とするクライアントコアの操作。
type ProfileCore interface {
	Snapshot() navigation.Snapshot
	Profile(ctx context.Context) (workflow.Outcome, error)
	BeginEdit(ctx context.Context) (workflow.Outcome, error)
	EditForm() (form.Fields, error)
	SubmitEdit(ctx context.Context, fields form.Fields, change *form.CredentialChange) (workflow.Outcome, error)
}

// ProfileHandler はホーム画面とプロフィール編集画面のHTTPハンドラー。
type ProfileHandler struct {
	core ProfileCore
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(core ProfileCore) *ProfileHandler {
	return &ProfileHandler{core: core}
}

// credentialChangeRequest はシークレット変更の入力。
type credentialChangeRequest struct {
	CurrentSecret string `json:"currentSecret"`
	NewSecret     string `json:"newSecret"`
	ConfirmSecret string `json:"confirmSecret"`
}

// updateProfileRequest はプロフィール編集フォームのリクエストボディ。
// 省略したフィールドは編集画面の入力値を維持する。メールアドレスは受け付けない。
type updateProfileRequest struct {
	Name             *string                  `json:"name"`
	Age              *string                  `json:"age"`
	Specialty        *string                  `json:"specialty"`
	CredentialChange *credentialChangeRequest `json:"credentialChange"`
}

// editFormResponse は編集画面の入力値のAPIレスポンス。
type editFormResponse struct {
	Fields form.Fields `json:"fields"`
}

// Get はホーム画面のプロフィールを返す。
// GET /api/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	out, err := h.core.Profile(r.Context())
	if err != nil {
		handleServiceError(w, err, navigation.Home)
		return
	}
	writeOutcome(w, out, h.core.Snapshot())
}

// BeginEdit はプロフィールを読み込んで編集画面を開く。
// POST /api/profile/edit
func (h *ProfileHandler) BeginEdit(w http.ResponseWriter, r *http.Request) {
	out, err := h.core.BeginEdit(r.Context())
	if err != nil {
		handleServiceError(w, err, navigation.Edit)
		return
	}
	writeOutcome(w, out, h.core.Snapshot())
}

// EditForm は編集画面の入力値を返す。
// GET /api/profile/edit
func (h *ProfileHandler) EditForm(w http.ResponseWriter, r *http.Request) {
	fields, err := h.core.EditForm()
	if err != nil {
		handleServiceError(w, err, navigation.Edit)
		return
	}
	writeJSON(w, http.StatusOK, editFormResponse{Fields: fields})
}

// Update は編集画面のフォームを送信する。
// PUT /api/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}

	fields := form.Fields{}
	if req.Name != nil {
		fields[form.Name] = *req.Name
	}
	if req.Age != nil {
		fields[form.Age] = *req.Age
	}
	if req.Specialty != nil {
		fields[form.Specialty] = *req.Specialty
	}

	var change *form.CredentialChange
	if c := req.CredentialChange; c != nil {
		change = &form.CredentialChange{
			CurrentSecret: c.CurrentSecret,
			NewSecret:     c.NewSecret,
			ConfirmSecret: c.ConfirmSecret,
		}
	}

	out, err := h.core.SubmitEdit(r.Context(), fields, change)
	if err != nil {
		handleServiceError(w, err, navigation.Edit)
		return
	}
	writeOutcome(w, out, h.core.Snapshot())
}
