package form

import (
	"maps"
	"strconv"

	"github.com/hitoshi/directorio/internal/model"
)

// CredentialChange はプロフィール編集中のシークレット変更要求。
type CredentialChange struct {
	CurrentSecret string
	NewSecret     string
	ConfirmSecret string
}

// State は画面が所有するフォーム状態。
// Errorsには現在検証に失敗しているフィールドだけが入る。
type State struct {
	Fields     Fields
	Errors     Errors
	Credential *CredentialChange // シークレット変更を選択していない場合はnil
}

// NewState は空のフォーム状態を生成する。
func NewState() *State {
	return &State{Fields: Fields{}, Errors: Errors{}}
}

// Set はフィールドの値を更新し、そのフィールドのエラーを消す。
func (s *State) Set(field, value string) {
	switch field {
	case CurrentSecret, NewSecret, ConfirmSecret:
		if s.Credential == nil {
			return
		}
		switch field {
		case CurrentSecret:
			s.Credential.CurrentSecret = value
		case NewSecret:
			s.Credential.NewSecret = value
		case ConfirmSecret:
			s.Credential.ConfirmSecret = value
		}
	default:
		s.Fields[field] = value
	}
	delete(s.Errors, field)
}

// EnableCredentialChange はシークレット変更の入力欄を開閉する。
// 閉じるときは入力値と関連するエラーを破棄する。
func (s *State) EnableCredentialChange(enabled bool) {
	if enabled {
		if s.Credential == nil {
			s.Credential = &CredentialChange{}
		}
		return
	}
	s.Credential = nil
	delete(s.Errors, CurrentSecret)
	delete(s.Errors, NewSecret)
	delete(s.Errors, ConfirmSecret)
}

// ChangingCredentials はシークレット変更を選択しているかを返す。
func (s *State) ChangingCredentials() bool {
	return s.Credential != nil
}

// Values は検証対象のフィールド値を返す。シークレット変更の入力も含む。
func (s *State) Values() Fields {
	values := maps.Clone(s.Fields)
	if values == nil {
		values = Fields{}
	}
	if s.Credential != nil {
		values[CurrentSecret] = s.Credential.CurrentSecret
		values[NewSecret] = s.Credential.NewSecret
		values[ConfirmSecret] = s.Credential.ConfirmSecret
	}
	return values
}

// Validate はoptsで検証し、Errorsを置き換える。検証に通った場合はtrueを返す。
// optsのChangeCredentialsは状態に合わせて上書きする。
func (s *State) Validate(opts Options) bool {
	opts.ChangeCredentials = s.Credential != nil
	s.Errors = Validate(s.Values(), opts)
	return len(s.Errors) == 0
}

// Clone は独立したコピーを返す。
func (s *State) Clone() *State {
	c := &State{Fields: maps.Clone(s.Fields), Errors: maps.Clone(s.Errors)}
	if c.Fields == nil {
		c.Fields = Fields{}
	}
	if c.Errors == nil {
		c.Errors = Errors{}
	}
	if s.Credential != nil {
		cred := *s.Credential
		c.Credential = &cred
	}
	return c
}

// Valid はエラーが1件もないかを返す。
func (s *State) Valid() bool {
	return len(s.Errors) == 0
}

// ResetFromRecord はプロフィール文書から入力値を作り直す。
// エラーとシークレット変更の入力は破棄する。
func (s *State) ResetFromRecord(record model.ProfileRecord) {
	s.Fields = Fields{
		Name:      record.Name,
		Email:     record.Email,
		Age:       formatAge(record.Age),
		Specialty: record.Specialty,
	}
	s.Errors = Errors{}
	s.Credential = nil
}

func formatAge(age int) string {
	if age == 0 {
		return ""
	}
	return strconv.Itoa(age)
}
