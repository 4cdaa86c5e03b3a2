package credential

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const OneTimePasswordLength = 6

var digits = []byte("0123456789")

// OneTimePassword returns a random numeric password handed to new users,
// who must replace it on first login.
func OneTimePassword() (string, error) {
	otp := make([]byte, OneTimePasswordLength)
	for idx := range otp {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", fmt.Errorf("generate one time password: %w", err)
		}
		otp[idx] = digits[n.Int64()]
	}
	return string(otp), nil
}
