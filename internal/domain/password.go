package domain

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidPasswordHash         = errors.New("domain: invalid password hash format")
	ErrIncompatiblePasswordVersion = errors.New("domain: incompatible password hash version")
)

// Argon2idParams tunes the password hashing algorithm. Spec §4.5 exposes
// these as ARGON2_TIME_COST, ARGON2_MEMORY_COST, ARGON2_PARALLELISM.
type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2idParams matches spec §4.5's defaults (time_cost=3,
// memory_cost_kib=19456, parallelism=1).
var DefaultArgon2idParams = Argon2idParams{
	Memory:      19456,
	Iterations:  3,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// PasswordPolicy enforces spec §4.5 strength and history rules.
type PasswordPolicy struct {
	MinLength    int
	HistoryCount int
}

// DefaultPasswordPolicy matches spec §4.5's defaults (L_min=12, N_hist=3).
var DefaultPasswordPolicy = PasswordPolicy{MinLength: 12, HistoryCount: 3}

// CheckStrength validates length and character-class requirements. It never
// inspects history; callers combine it with CheckHistory.
func (p PasswordPolicy) CheckStrength(password string) *ValidationError {
	minLen := p.MinLength
	if minLen <= 0 {
		minLen = DefaultPasswordPolicy.MinLength
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsSpace(r):
			hasSymbol = true
		}
	}

	verr := &ValidationError{}
	if len(password) < minLen {
		verr.add("password", fmt.Sprintf("must be at least %d characters", minLen))
	}
	if !hasUpper {
		verr.add("password", "must contain an uppercase letter")
	}
	if !hasLower {
		verr.add("password", "must contain a lowercase letter")
	}
	if !hasDigit {
		verr.add("password", "must contain a digit")
	}
	if !hasSymbol {
		verr.add("password", "must contain a non-alphanumeric character")
	}
	if !verr.HasErrors() {
		return nil
	}
	return verr
}

// CheckHistory reports ErrPasswordReused if the candidate password matches
// any digest in history (most recent first).
func (p PasswordPolicy) CheckHistory(candidate string, history []string) error {
	for _, digest := range history {
		if VerifyPassword(digest, candidate) == nil {
			return ErrPasswordReused
		}
	}
	return nil
}

// PushHistory prepends digest to history, evicting the oldest entry once the
// configured bound is exceeded (spec §4.5: "on change, the oldest digest is
// evicted").
func (p PasswordPolicy) PushHistory(history []string, digest string) []string {
	bound := p.HistoryCount
	if bound <= 0 {
		bound = DefaultPasswordPolicy.HistoryCount
	}
	updated := append([]string{digest}, history...)
	if len(updated) > bound {
		updated = updated[:bound]
	}
	return updated
}

// CreatePasswordHash derives an Argon2id digest with the given parameters,
// embedding them in the encoded output so later verification does not need
// to know which parameters were used at creation time.
func CreatePasswordHash(password string, params Argon2idParams) (string, error) {
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	format := "$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s"
	return fmt.Sprintf(format, argon2.Version, params.Memory, params.Iterations, params.Parallelism, b64Salt, b64Hash), nil
}

// VerifyPassword compares a candidate password against an encoded Argon2id
// digest using a constant-time comparison.
func VerifyPassword(hashedPassword, password string) error {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 6 {
		return ErrInvalidPasswordHash
	}

	if parts[1] != "argon2id" {
		return ErrInvalidPasswordHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return err
	}
	if version != argon2.Version {
		return ErrIncompatiblePasswordVersion
	}

	var params Argon2idParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return err
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return err
	}
	params.SaltLength = uint32(len(salt))

	decodedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return err
	}
	params.KeyLength = uint32(len(decodedHash))

	comparisonHash := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	if subtle.ConstantTimeCompare(decodedHash, comparisonHash) == 1 {
		return nil
	}

	return ErrInvalidCredentials
}
