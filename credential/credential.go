// Package credential hashes and verifies user and share passwords.
package credential

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxSecretBytes is the longest secret bcrypt accepts. It counts bytes, not
// characters.
const MaxSecretBytes = 72

// Bcrypt hashes secrets with bcrypt. The zero value uses bcrypt.DefaultCost.
type Bcrypt struct {
	Cost int
}

func (b Bcrypt) cost() int {
	if b.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return b.Cost
}

// Hash returns the bcrypt hash of secret.
func (b Bcrypt) Hash(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), b.cost())
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether secret matches hash. A malformed hash never verifies.
func (b Bcrypt) Verify(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
