package handler

import (
	"net/http"

	"github.com/hitoshi/directorio/internal/middleware"
	"github.com/hitoshi/directorio/internal/model"
	"github.com/hitoshi/directorio/internal/navigation"
)

// NavigationCore はナビゲーションハンドラーが必要とするクライアントコアの操作。
type NavigationCore interface {
	Snapshot() navigation.Snapshot
	Navigate(screen navigation.Screen) (navigation.Snapshot, error)
	Back() (navigation.Snapshot, error)
}

// NavigationHandler はナビゲーション状態のHTTPハンドラー。
type NavigationHandler struct {
	core NavigationCore
}

// NewNavigationHandler はNavigationHandlerを生成する。
func NewNavigationHandler(core NavigationCore) *NavigationHandler {
	return &NavigationHandler{core: core}
}

type navigateRequest struct {
	Screen navigation.Screen `json:"screen"`
}

// Get は現在のナビゲーション状態を返す。
// GET /api/navigation
func (h *NavigationHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.core.Snapshot())
}

// Navigate は画面を遷移する。
// POST /api/navigation/navigate
func (h *NavigationHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Screen == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("screenが空です"))
		return
	}

	snap, err := h.core.Navigate(req.Screen)
	if err != nil {
		handleServiceError(w, err, req.Screen)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Back は1つ前の画面に戻る。
// POST /api/navigation/back
func (h *NavigationHandler) Back(w http.ResponseWriter, r *http.Request) {
	snap, err := h.core.Back()
	if err != nil {
		handleServiceError(w, err, h.core.Snapshot().Current)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
