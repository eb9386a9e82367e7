package workflow

import (
	"github.com/hitoshi/directorio/internal/model"
)

// 画面に表示する通知の文言
const (
	titleError        = "Error"
	titleLoginError   = "Error de Inicio de Sesión"
	titleAttention    = "Atención"
	titlePartial      = "Actualización parcial"
	titleRegistered   = "Registro Exitoso"
	titleUpdated      = "Actualización Exitosa"
	msgRegistered     = "Tu cuenta ha sido creada correctamente"
	msgUpdated        = "Tu información ha sido actualizada correctamente"
	msgRegisterFailed = "Ocurrió un error durante el registro"
	msgLoginFailed    = "Ocurrió un error durante el inicio de sesión"
	msgUpdateFailed   = "Ocurrió un error al actualizar la información"
	msgPartialPrefix  = "Tus datos fueron actualizados, pero no se pudo cambiar la contraseña: "
	msgNoProfile      = "No se encontraron datos del usuario"
	msgLoadFailed     = "No se pudieron cargar los datos del usuario"
	msgSignOutFailed  = "No se pudo cerrar la sesión"
)

var registrationMessages = map[model.IdentityErrorKind]string{
	model.KindEmailAlreadyInUse: "Este correo ya está registrado",
	model.KindWeakPassword:      "La contraseña es muy débil",
	model.KindInvalidEmail:      "El correo electrónico no es válido",
}

var loginMessages = map[model.IdentityErrorKind]string{
	model.KindUserNotFound:    "No existe una cuenta con este correo electrónico",
	model.KindWrongPassword:   "La contraseña es incorrecta",
	model.KindInvalidEmail:    "El correo electrónico no es válido",
	model.KindUserDisabled:    "Esta cuenta ha sido deshabilitada",
	model.KindTooManyRequests: "Demasiados intentos fallidos. Intenta más tarde",
}

var editMessages = map[model.IdentityErrorKind]string{
	model.KindWrongPassword:       "La contraseña actual es incorrecta",
	model.KindWeakPassword:        "La nueva contraseña es muy débil",
	model.KindRequiresRecentLogin: "Debes iniciar sesión nuevamente para cambiar la contraseña",
}

// identityMessage はエラー種別に対応する文言を返す。
// 対応表にない種別はprefixに種別を付けた文言、Identityエラー以外はfallbackを返す。
func identityMessage(err error, messages map[model.IdentityErrorKind]string, prefix, fallback string) string {
	kind, ok := model.IdentityErrorKindOf(err)
	if !ok {
		return fallback
	}
	if msg, ok := messages[kind]; ok {
		return msg
	}
	return prefix + string(kind)
}

func registrationAlert(err error) Alert {
	return Alert{Title: titleError, Message: identityMessage(err, registrationMessages, "Error: ", msgRegisterFailed)}
}

func loginAlert(err error) Alert {
	return Alert{Title: titleLoginError, Message: identityMessage(err, loginMessages, "Error: ", msgLoginFailed)}
}

func editAlert(err error) Alert {
	return Alert{Title: titleError, Message: identityMessage(err, editMessages, "Error de autenticación: ", msgUpdateFailed)}
}

func partialAlert(err error) Alert {
	return Alert{Title: titlePartial, Message: msgPartialPrefix + editAlert(err).Message}
}
