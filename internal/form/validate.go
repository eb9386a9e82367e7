// Package form は入力フォームの検証と画面ごとのフォーム状態を提供する。
// Validateは副作用を持たず、同じ入力に対して常に同じ結果を返す。
package form

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/directorio/internal/model"
)

// フィールド名
const (
	Name          = "name"
	Email         = "email"
	Secret        = "secret"
	Age           = "age"
	Specialty     = "specialty"
	CurrentSecret = "currentSecret"
	NewSecret     = "newSecret"
	ConfirmSecret = "confirmSecret"
)

// MinSecretLength は新しいシークレットの最小文字数。
const MinSecretLength = 6

// 検証メッセージ
const (
	MsgNameRequired          = "El nombre es requerido"
	MsgEmailRequired         = "El correo es requerido"
	MsgEmailInvalid          = "El correo no es válido"
	MsgSecretRequired        = "La contraseña es requerida"
	MsgSecretTooShort        = "La contraseña debe tener al menos 6 caracteres"
	MsgAgeRequired           = "La edad es requerida"
	MsgAgeOutOfRange         = "La edad debe ser un número entre 18 y 100"
	MsgSpecialtyRequired     = "La especialidad es requerida"
	MsgCurrentSecretRequired = "Ingresa tu contraseña actual"
	MsgNewSecretRequired     = "Ingresa una nueva contraseña"
	MsgNewSecretTooShort     = "La nueva contraseña debe tener al menos 6 caracteres"
	MsgSecretMismatch        = "Las contraseñas no coinciden"
)

var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

// Fields はフィールド名から入力値への対応。
type Fields map[string]string

// Errors はフィールド名から検証メッセージへの対応。失敗したフィールドだけを含む。
type Errors map[string]string

// Options は適用する検証規則を選択する。
type Options struct {
	RequireName       bool
	RequireEmail      bool
	RequireSecret     bool
	SecretIsNew       bool // Secretに最小文字数を適用する
	RequireAge        bool
	RequireSpecialty  bool
	ChangeCredentials bool // currentSecret、newSecret、confirmSecretを検証する
}

// RegistrationOptions は登録画面の検証規則。
var RegistrationOptions = Options{
	RequireName:      true,
	RequireEmail:     true,
	RequireSecret:    true,
	SecretIsNew:      true,
	RequireAge:       true,
	RequireSpecialty: true,
}

// LoginOptions はログイン画面の検証規則。
var LoginOptions = Options{
	RequireEmail:  true,
	RequireSecret: true,
}

// ProfileEditOptions はプロフィール編集画面の検証規則。
// メールアドレスは作成後に変更できないため検証しない。
func ProfileEditOptions(changeCredentials bool) Options {
	return Options{
		RequireName:       true,
		RequireAge:        true,
		RequireSpecialty:  true,
		ChangeCredentials: changeCredentials,
	}
}

// Validate はfieldsをoptsの規則で検証する。
// 全フィールドを独立に検証し、失敗したフィールドのメッセージを返す。
func Validate(fields Fields, opts Options) Errors {
	errs := Errors{}

	if opts.RequireName && blank(fields[Name]) {
		errs[Name] = MsgNameRequired
	}

	if opts.RequireEmail {
		email := strings.TrimSpace(fields[Email])
		switch {
		case email == "":
			errs[Email] = MsgEmailRequired
		case !emailPattern.MatchString(email):
			errs[Email] = MsgEmailInvalid
		}
	}

	if opts.RequireSecret {
		secret := fields[Secret]
		switch {
		case secret == "":
			errs[Secret] = MsgSecretRequired
		case opts.SecretIsNew && utf8.RuneCountInString(secret) < MinSecretLength:
			errs[Secret] = MsgSecretTooShort
		}
	}

	if opts.RequireAge {
		if blank(fields[Age]) {
			errs[Age] = MsgAgeRequired
		} else if _, ok := ParseAge(fields[Age]); !ok {
			errs[Age] = MsgAgeOutOfRange
		}
	}

	if opts.RequireSpecialty && blank(fields[Specialty]) {
		errs[Specialty] = MsgSpecialtyRequired
	}

	if opts.ChangeCredentials {
		if fields[CurrentSecret] == "" {
			errs[CurrentSecret] = MsgCurrentSecretRequired
		}

		newSecret := fields[NewSecret]
		switch {
		case newSecret == "":
			errs[NewSecret] = MsgNewSecretRequired
		case utf8.RuneCountInString(newSecret) < MinSecretLength:
			errs[NewSecret] = MsgNewSecretTooShort
		}

		// 長さの検証結果とは独立に、バイト単位で比較する
		if newSecret != fields[ConfirmSecret] {
			errs[ConfirmSecret] = MsgSecretMismatch
		}
	}

	return errs
}

// ParseAge は前後の空白を除いた10進整数として年齢を解釈する。
// 範囲外または整数でない場合はfalseを返す。
func ParseAge(s string) (int, bool) {
	age, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || age < model.MinAge || age > model.MaxAge {
		return 0, false
	}
	return age, true
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
