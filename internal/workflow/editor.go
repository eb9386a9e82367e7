package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/hitoshi/directorio/internal/form"
	"github.com/hitoshi/directorio/internal/model"
)

const workflowEdit = "profile_edit"

// Editor はプロフィール編集画面1つ分の送信処理。
// 画面インスタンスごとに生成し、同時に1件だけ実行する。
type Editor struct {
	svc     Services
	mounted func() bool
	busy    atomic.Bool
}

// NewEditor はEditorを生成する。
// mountedは開始した画面がまだ表示されているかを返す（nilの場合は常に表示中とみなす）。
func NewEditor(svc Services, mounted func() bool) *Editor {
	return &Editor{svc: svc, mounted: mounted}
}

// Busy は送信処理が実行中かを返す。
func (e *Editor) Busy() bool {
	return e.busy.Load()
}

// Submit はフォームを検証し、プロフィールを更新する。
// シークレット変更を選択している場合は、更新後に再認証してから変更する。
// 再認証またはシークレット変更の失敗はPartialSuccessとして返し、プロフィールの更新は戻さない。
func (e *Editor) Submit(ctx context.Context, st *form.State) Outcome {
	if !e.busy.CompareAndSwap(false, true) {
		return busy()
	}
	defer e.busy.Store(false)

	out, err := e.submit(ctx, st)
	e.svc.record(workflowEdit, out, err)

	if e.mounted != nil && !e.mounted() {
		slog.Debug("profile edit finished after screen was unmounted")
		out.Stale = true
		out.NavigateBack = false
	}
	return out
}

func (e *Editor) submit(ctx context.Context, st *form.State) (Outcome, error) {
	e.svc.sanitizeFields(st, form.Name, form.Specialty)

	if !st.Validate(form.ProfileEditOptions(st.ChangingCredentials())) {
		return invalid(st.Errors), nil
	}

	identity := e.svc.Identity.CurrentIdentity()
	if identity == nil {
		err := errors.New("no authenticated identity for profile edit")
		return failed(editAlert(err)), err
	}

	age, _ := form.ParseAge(st.Fields[form.Age])
	updatedAt := model.FormatTimestamp(e.svc.now())
	partial := map[string]any{
		model.DocName:      st.Fields[form.Name],
		model.DocAge:       age,
		model.DocSpecialty: st.Fields[form.Specialty],
		model.DocUpdatedAt: updatedAt,
	}
	if err := e.svc.Records.Update(ctx, model.ProfileCollection, identity.ID, partial); err != nil {
		return failed(editAlert(err)), err
	}

	record := &model.ProfileRecord{
		Name:      st.Fields[form.Name],
		Email:     st.Fields[form.Email],
		Age:       age,
		Specialty: st.Fields[form.Specialty],
		UpdatedAt: updatedAt,
	}

	if cred := st.Credential; cred != nil {
		// 再認証に成功するまでシークレットは変更しない
		if err := e.svc.Identity.Reauthenticate(ctx, identity.ID, cred.CurrentSecret); err != nil {
			return Outcome{Kind: PartialSuccess, Alert: ptr(partialAlert(err)), Record: record}, err
		}
		if err := e.svc.Identity.ChangeSecret(ctx, identity.ID, cred.NewSecret); err != nil {
			return Outcome{Kind: PartialSuccess, Alert: ptr(partialAlert(err)), Record: record}, err
		}
	}

	return Outcome{
		Kind:         Success,
		Alert:        &Alert{Title: titleUpdated, Message: msgUpdated},
		NavigateBack: true,
		Record:       record,
	}, nil
}

func ptr[T any](v T) *T {
	return &v
}
