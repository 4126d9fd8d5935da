package auth

import "golang.org/x/crypto/bcrypt"

// ComparePassword verifies a password against its stored bcrypt hash.
func ComparePassword(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
