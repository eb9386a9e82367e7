package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ProfileCollection はプロフィール文書を格納するコレクション名。
const ProfileCollection = "usuarios"

// プロフィール文書のキー。
const (
	DocName      = "nombre"
	DocEmail     = "correo"
	DocAge       = "edad"
	DocSpecialty = "especialidad"
	DocCreatedAt = "fechaRegistro"
	DocUpdatedAt = "fechaActualizacion"
)

// 年齢の許容範囲（両端を含む）。
const (
	MinAge = 18
	MaxAge = 100
)

// ProfileRecord は利用者1人分のプロフィール文書を表す。
// Emailは作成後に変更しない。
type ProfileRecord struct {
	Name      string
	Email     string
	Age       int
	Specialty string
	CreatedAt string // RFC 3339
	UpdatedAt string // RFC 3339、未更新の場合は空
}

// NewProfileRecord は登録時点のプロフィールを生成する。
func NewProfileRecord(name, email string, age int, specialty string, now time.Time) ProfileRecord {
	return ProfileRecord{
		Name:      name,
		Email:     email,
		Age:       age,
		Specialty: specialty,
		CreatedAt: FormatTimestamp(now),
	}
}

// Document はRecord Storeに書き込む文書表現を返す。
func (p ProfileRecord) Document() map[string]any {
	doc := map[string]any{
		DocName:      p.Name,
		DocEmail:     p.Email,
		DocAge:       p.Age,
		DocSpecialty: p.Specialty,
	}
	if p.CreatedAt != "" {
		doc[DocCreatedAt] = p.CreatedAt
	}
	if p.UpdatedAt != "" {
		doc[DocUpdatedAt] = p.UpdatedAt
	}
	return doc
}

// ProfileFromDocument はRecord Storeの文書からProfileRecordを復元する。
// 年齢はバックエンドによってint、float64、json.Number、文字列のいずれでも受け付ける。
func ProfileFromDocument(doc map[string]any) (ProfileRecord, error) {
	if doc == nil {
		return ProfileRecord{}, fmt.Errorf("profile document is nil")
	}

	age, err := intValue(doc[DocAge])
	if err != nil {
		return ProfileRecord{}, fmt.Errorf("invalid %s: %w", DocAge, err)
	}

	return ProfileRecord{
		Name:      stringValue(doc[DocName]),
		Email:     stringValue(doc[DocEmail]),
		Age:       age,
		Specialty: stringValue(doc[DocSpecialty]),
		CreatedAt: stringValue(doc[DocCreatedAt]),
		UpdatedAt: stringValue(doc[DocUpdatedAt]),
	}, nil
}

// FormatTimestamp は文書に保存する時刻表現（UTCのRFC 3339）を返す。
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func intValue(v any) (int, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, err
		}
		return int(i), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
