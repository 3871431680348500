package user

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher hashes and verifies stored passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
	NeedsRehash(hash string) bool
}

// BcryptHasher stores salted bcrypt hashes.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) cost() int {
	if b.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return b.Cost
}

func (b BcryptHasher) Hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), b.cost())
	if err != nil {
		return "", fmt.Errorf("user: hash password: %w", err)
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NeedsRehash reports whether hash is not bcrypt or was made with another cost.
func (b BcryptHasher) NeedsRehash(hash string) bool {
	c, err := bcrypt.Cost([]byte(hash))
	return err != nil || c != b.cost()
}

// MD5Hasher reproduces unsalted hex md5 digests. Use it only to read sheets
// that already hold such digests.
type MD5Hasher struct{}

func (MD5Hasher) Hash(password string) (string, error) {
	sum := md5.Sum([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

func (m MD5Hasher) Verify(hash, password string) bool {
	want, _ := m.Hash(password)
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(hash)), []byte(want)) == 1
}

func (MD5Hasher) NeedsRehash(string) bool { return false }

// MigratingHasher hashes with Current and still accepts Legacy hashes, which
// it reports as needing a rehash so they are replaced on the next login.
type MigratingHasher struct {
	Current BcryptHasher
	Legacy  PasswordHasher
}

func (m MigratingHasher) Hash(password string) (string, error) {
	return m.Current.Hash(password)
}

func (m MigratingHasher) Verify(hash, password string) bool {
	if isBcrypt(hash) {
		return m.Current.Verify(hash, password)
	}
	return m.Legacy != nil && m.Legacy.Verify(hash, password)
}

func (m MigratingHasher) NeedsRehash(hash string) bool {
	return m.Current.NeedsRehash(hash)
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2")
}

// NewPasswordHasher returns the hasher named by algo: "bcrypt" (default,
// accepting legacy md5 digests) or "md5".
func NewPasswordHasher(algo string, cost int) (PasswordHasher, error) {
	switch strings.ToLower(algo) {
	case "", "bcrypt":
		return MigratingHasher{Current: BcryptHasher{Cost: cost}, Legacy: MD5Hasher{}}, nil
	case "md5":
		return MD5Hasher{}, nil
	default:
		return nil, fmt.Errorf("user: unknown password hasher %q", algo)
	}
}
