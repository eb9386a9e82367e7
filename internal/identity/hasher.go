package identity

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher はシークレットのハッシュ化と照合を行う。
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(hash, secret string) bool
}

// BcryptHasher はbcryptによるHasher実装。
// Costが0の場合はbcrypt.DefaultCostを使う。
type BcryptHasher struct {
	Cost int
}

// Hash はシークレットをハッシュ化する。
func (h BcryptHasher) Hash(secret string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(b), nil
}

// Verify はハッシュとシークレットが一致するかを返す。
func (h BcryptHasher) Verify(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
