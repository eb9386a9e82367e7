// Package recordstore はコレクションとキーで文書を読み書きするRecord Storeを提供する。
// 利用者ごとのプロフィール文書を1件ずつ保持する。
package recordstore

import (
	"context"
	"errors"
	"maps"
)

// ErrNotFound はUpdate対象の文書が存在しない場合に返される。
var ErrNotFound = errors.New("document not found")

// Document はフィールド名から値への文書表現。
type Document = map[string]any

// Store はRecord Storeのインターフェース。
type Store interface {
	// Get は文書を取得する。存在しない場合はnil,nilを返す。
	Get(ctx context.Context, collection, key string) (Document, error)

	// Set は文書全体を書き込む。既存の文書は置き換える。
	Set(ctx context.Context, collection, key string, doc Document) error

	// Update は指定フィールドだけを上書きする。文書が存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, collection, key string, partial Document) error
}

// Deleter は文書を削除できるStore。
type Deleter interface {
	Delete(ctx context.Context, collection, key string) error
}

// merge はdstのコピーにpartialを上書きした文書を返す。
func merge(dst, partial Document) Document {
	out := make(Document, len(dst)+len(partial))
	maps.Copy(out, dst)
	maps.Copy(out, partial)
	return out
}
