package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/directorio/internal/form"
	"github.com/hitoshi/directorio/internal/navigation"
	"github.com/hitoshi/directorio/internal/workflow"
)

// EntryCore は登録とログインのハンドラーが必要とするクライアントコアの操作。
type EntryCore interface {
	Snapshot() navigation.Snapshot
	Register(ctx context.Context, fields form.Fields) (workflow.Outcome, error)
	Login(ctx context.Context, fields form.Fields) (workflow.Outcome, error)
	SignOut(ctx context.Context) (workflow.Outcome, error)
}

// EntryHandler は登録、ログイン、ログアウトのHTTPハンドラー。
type EntryHandler struct {
	core EntryCore
}

// NewEntryHandler はEntryHandlerを生成する。
func NewEntryHandler(core EntryCore) *EntryHandler {
	return &EntryHandler{core: core}
}

// registerRequest は登録フォームのリクエストボディ。
type registerRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Secret    string `json:"secret"`
	Age       string `json:"age"`
	Specialty string `json:"specialty"`
}

type loginRequest struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
}

// Register は登録フォームを送信する。
// POST /api/register
func (h *EntryHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	out, err := h.core.Register(r.Context(), form.Fields{
		form.Name:      req.Name,
		form.Email:     req.Email,
		form.Secret:    req.Secret,
		form.Age:       req.Age,
		form.Specialty: req.Specialty,
	})
	if err != nil {
		handleServiceError(w, err, navigation.Register)
		return
	}
	writeOutcome(w, out, h.core.Snapshot())
}

// Login はログインフォームを送信する。
// POST /api/login
func (h *EntryHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	out, err := h.core.Login(r.Context(), form.Fields{
		form.Email:  req.Email,
		form.Secret: req.Secret,
	})
	if err != nil {
		handleServiceError(w, err, navigation.Login)
		return
	}
	writeOutcome(w, out, h.core.Snapshot())
}

// Logout はホーム画面からサインアウトする。
// POST /api/logout
func (h *EntryHandler) Logout(w http.ResponseWriter, r *http.Request) {
	out, err := h.core.SignOut(r.Context())
	if err != nil {
		handleServiceError(w, err, navigation.Home)
		return
	}
	writeOutcome(w, out, h.core.Snapshot())
}
