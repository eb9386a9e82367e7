package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/hitoshi/directorio/internal/form"
	"github.com/hitoshi/directorio/internal/model"
)

const workflowRegister = "registration"

// Registrar は登録画面の送信処理。
type Registrar struct {
	svc  Services
	busy atomic.Bool
}

// NewRegistrar はRegistrarを生成する。
func NewRegistrar(svc Services) *Registrar {
	return &Registrar{svc: svc}
}

// Submit はidentityを作成し、初期プロフィールを書き込む。
// プロフィールの書き込みに失敗した場合は作成したidentityを削除する。
// 画面の切り替えはセッション通知に任せ、ここでは遷移しない。
func (r *Registrar) Submit(ctx context.Context, st *form.State) Outcome {
	if !r.busy.CompareAndSwap(false, true) {
		return busy()
	}
	defer r.busy.Store(false)

	out, err := r.submit(ctx, st)
	r.svc.record(workflowRegister, out, err)
	return out
}

func (r *Registrar) submit(ctx context.Context, st *form.State) (Outcome, error) {
	r.svc.sanitizeFields(st, form.Name, form.Specialty)

	if !st.Validate(form.RegistrationOptions) {
		return invalid(st.Errors), nil
	}

	email := strings.TrimSpace(st.Fields[form.Email])
	identity, err := r.svc.Identity.SignUp(ctx, email, st.Fields[form.Secret])
	if err != nil {
		return failed(registrationAlert(err)), err
	}

	age, _ := form.ParseAge(st.Fields[form.Age])
	record := model.NewProfileRecord(st.Fields[form.Name], email, age, st.Fields[form.Specialty], r.svc.now())

	if err := r.svc.Records.Set(ctx, model.ProfileCollection, identity.ID, record.Document()); err != nil {
		r.compensate(ctx, identity.ID)
		return failed(Alert{Title: titleError, Message: msgRegisterFailed}), fmt.Errorf("failed to write initial profile: %w", err)
	}

	return Outcome{
		Kind:   Success,
		Alert:  &Alert{Title: titleRegistered, Message: msgRegistered},
		Record: &record,
	}, nil
}

// compensate はプロフィールのないidentityを削除する。
// 削除にも失敗した場合は修復ジョブが後で削除する。
func (r *Registrar) compensate(ctx context.Context, identityID string) {
	if err := r.svc.Identity.DeleteIdentity(context.WithoutCancel(ctx), identityID); err != nil {
		slog.Error("failed to delete identity without profile, leaving it for repair",
			slog.String("identity_id", identityID),
			slog.String("error", err.Error()),
		)
		return
	}
	slog.Warn("deleted identity after profile write failure", slog.String("identity_id", identityID))
}
