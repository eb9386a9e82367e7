package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/directorio/internal/form"
	"github.com/hitoshi/directorio/internal/model"
)

const (
	workflowHomeLoad = "home_load"
	workflowSignOut  = "sign_out"
)

// errNoProfile は現在のidentityにプロフィールがない場合のエラー。
var errNoProfile = errors.New("profile record not found")

// Home はホーム画面の処理。
type Home struct {
	svc   Services
	group singleflight.Group
}

// NewHome はHomeを生成する。
func NewHome(svc Services) *Home {
	return &Home{svc: svc}
}

// Load は現在のidentityのプロフィールを読み込む。
// 同時に呼ばれた読み込み（初回表示と引っ張って更新）は1回のRecord Store呼び出しにまとめる。
func (h *Home) Load(ctx context.Context) Outcome {
	out, err := h.load(ctx)
	h.svc.record(workflowHomeLoad, out, err)
	return out
}

func (h *Home) load(ctx context.Context) (Outcome, error) {
	identity := h.svc.Identity.CurrentIdentity()
	if identity == nil {
		err := errors.New("no authenticated identity for home load")
		return failed(Alert{Title: titleError, Message: msgLoadFailed}), err
	}

	v, err, _ := h.group.Do(identity.ID, func() (any, error) {
		doc, err := h.svc.Records.Get(ctx, model.ProfileCollection, identity.ID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, errNoProfile
		}
		record, err := model.ProfileFromDocument(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to decode profile: %w", err)
		}
		return &record, nil
	})

	if errors.Is(err, errNoProfile) {
		// 登録直後で書き込み前の場合もあるためエラーログにはしない
		return failed(Alert{Title: titleAttention, Message: msgNoProfile}), nil
	}
	if err != nil {
		return failed(Alert{Title: titleError, Message: msgLoadFailed}), err
	}

	record := *v.(*model.ProfileRecord)
	return Outcome{Kind: Success, Record: &record}, nil
}

// SignOut はサインアウトする。画面の切り替えはセッション通知による。
func (h *Home) SignOut(ctx context.Context) Outcome {
	var out Outcome
	err := h.svc.Identity.SignOut(ctx)
	if err != nil {
		out = failed(Alert{Title: titleError, Message: msgSignOutFailed})
	} else {
		out = Outcome{Kind: Success}
	}
	h.svc.record(workflowSignOut, out, err)
	return out
}

// BeginEdit はプロフィールから編集画面のフォーム状態を作る。
func (h *Home) BeginEdit(record model.ProfileRecord) *form.State {
	st := form.NewState()
	st.ResetFromRecord(record)
	return st
}

// Initials は名前の各語の頭文字を最大2文字まで大文字で返す。名前が空の場合は"?"を返す。
func Initials(name string) string {
	if name == "" {
		return "?"
	}

	var b strings.Builder
	count := 0
	for _, word := range strings.Fields(name) {
		if count == 2 {
			break
		}
		r, _ := utf8.DecodeRuneInString(word)
		b.WriteRune(unicode.ToUpper(r))
		count++
	}
	if b.Len() == 0 {
		return "?"
	}
	return b.String()
}
