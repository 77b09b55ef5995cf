package user

import (
	"errors"
	"fmt"

	"github.com/alexedwards/argon2id"
)

// ErrWrongPassword is returned when a password does not match the stored hash.
var ErrWrongPassword = errors.New("wrong password")

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// passwordParams are the Argon2id parameters used for new hashes.
// RFC 9106 low-memory profile: 64 MiB, 1 iteration, 4 lanes.
var passwordParams = &argon2id.Params{
	Memory:      64 * 1024,
	Iterations:  1,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

// HashPassword hashes a plaintext password with Argon2id.
// Returns the PHC-format string suitable for storage.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return argon2id.CreateHash(password, passwordParams)
}

// VerifyPassword compares a plaintext password against a stored PHC hash.
// Returns ErrWrongPassword on mismatch. The comparison is constant-time.
func VerifyPassword(password, hash string) error {
	match, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil {
		return fmt.Errorf("compare password: %w", err)
	}
	if !match {
		return ErrWrongPassword
	}
	return nil
}
