package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}

	hash, err := h.Hash("secret")
	require.NoError(t, err)

	assert.True(t, h.Verify(hash, "secret"))
	assert.False(t, h.Verify(hash, "wrong"))
	assert.False(t, h.NeedsRehash(hash))
	assert.True(t, BcryptHasher{Cost: bcrypt.MinCost + 1}.NeedsRehash(hash))
	assert.True(t, h.NeedsRehash("5ebe2294ecd0e0f08eab7690d2a6ee69"))
}

func TestMD5Hasher(t *testing.T) {
	h := MD5Hasher{}

	hash, err := h.Hash("secret")
	require.NoError(t, err)
	assert.Equal(t, "5ebe2294ecd0e0f08eab7690d2a6ee69", hash)

	assert.True(t, h.Verify("5EBE2294ECD0E0F08EAB7690D2A6EE69", "secret"))
	assert.False(t, h.Verify(hash, "Secret"))
}

func TestMigratingHasher(t *testing.T) {
	h := MigratingHasher{Current: BcryptHasher{Cost: bcrypt.MinCost}, Legacy: MD5Hasher{}}
	legacy := "5ebe2294ecd0e0f08eab7690d2a6ee69"

	assert.True(t, h.Verify(legacy, "secret"))
	assert.True(t, h.NeedsRehash(legacy))

	fresh, err := h.Hash("secret")
	require.NoError(t, err)
	assert.True(t, h.Verify(fresh, "secret"))
	assert.False(t, h.NeedsRehash(fresh))
	assert.False(t, h.Verify(fresh, legacy), "a digest is not a password")
}

func TestNewPasswordHasher(t *testing.T) {
	h, err := NewPasswordHasher("bcrypt", 12)
	require.NoError(t, err)
	assert.Equal(t, 12, h.(MigratingHasher).Current.Cost)

	h, err = NewPasswordHasher("MD5", 0)
	require.NoError(t, err)
	assert.IsType(t, MD5Hasher{}, h)

	_, err = NewPasswordHasher("argon2", 0)
	assert.Error(t, err)
}

func TestDefaultMenus(t *testing.T) {
	m := DefaultMenus()

	admin := m.Menu("Admin")
	require.Len(t, admin, 3)
	assert.Equal(t, "Usuarios", admin[1].Label)
	assert.Len(t, admin[1].Items, 2)

	assert.Equal(t, []MenuItem{{Label: "Inicio", Path: "/"}}, m.Menu("editor"))
}
