package recordstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore はdocumentsテーブルのJSONB列に文書を保持するStore。
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get は文書を取得する。数値はjson.Numberとして復元する。
func (s *PostgresStore) Get(ctx context.Context, collection, key string) (Document, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND key = $2`,
		collection, key,
	).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document %s/%s: %w", collection, key, err)
	}
	return doc, nil
}

// Set は文書全体をUPSERTする。
func (s *PostgresStore) Set(ctx context.Context, collection, key string, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, key, data, updated_at)
		 VALUES ($1, $2, $3::jsonb, now())
		 ON CONFLICT (collection, key)
		 DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		collection, key, data,
	)
	if err != nil {
		return fmt.Errorf("failed to set document: %w", err)
	}
	return nil
}

// Update はJSONBの連結演算子で指定フィールドだけを上書きする。
func (s *PostgresStore) Update(ctx context.Context, collection, key string, partial Document) error {
	data, err := json.Marshal(partial)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET data = data || $3::jsonb, updated_at = now()
		 WHERE collection = $1 AND key = $2`,
		collection, key, data,
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete は文書を削除する。
func (s *PostgresStore) Delete(ctx context.Context, collection, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND key = $2`,
		collection, key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func decode(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// compile-time interface check
var (
	_ Store   = (*PostgresStore)(nil)
	_ Deleter = (*PostgresStore)(nil)
)
