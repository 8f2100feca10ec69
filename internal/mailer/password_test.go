package mailer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-ats-go/internal/config"
)

func newFernetToken(t *testing.T, secret string) (key string, token []byte) {
	t.Helper()
	var k fernet.Key
	require.NoError(t, k.Generate())
	tok, err := fernet.EncryptAndSign([]byte(secret), &k)
	require.NoError(t, err)
	return k.Encode(), tok
}

func TestDecryptPassword(t *testing.T) {
	key, tok := newFernetToken(t, "app-password")

	got, err := DecryptPassword(key, append(tok, '\n'))
	require.NoError(t, err)
	assert.Equal(t, "app-password", got)

	otherKey, _ := newFernetToken(t, "x")
	_, err = DecryptPassword(otherKey, tok)
	assert.Error(t, err)

	_, err = DecryptPassword("not-a-key", tok)
	assert.Error(t, err)
}

func TestResolvePassword(t *testing.T) {
	key, tok := newFernetToken(t, "from-file")
	path := filepath.Join(t.TempDir(), "encrypted_password.bin")
	require.NoError(t, os.WriteFile(path, tok, 0o600))

	t.Run("plain password wins", func(t *testing.T) {
		got, err := ResolvePassword(config.MailConfig{Password: "plain", PasswordFile: path, FernetKey: key})
		require.NoError(t, err)
		assert.Equal(t, "plain", got)
	})

	t.Run("decrypts file", func(t *testing.T) {
		got, err := ResolvePassword(config.MailConfig{PasswordFile: path, FernetKey: key})
		require.NoError(t, err)
		assert.Equal(t, "from-file", got)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := ResolvePassword(config.MailConfig{PasswordFile: path})
		assert.ErrorIs(t, err, ErrNoPassword)
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := ResolvePassword(config.MailConfig{})
		assert.ErrorIs(t, err, ErrNoPassword)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ResolvePassword(config.MailConfig{PasswordFile: filepath.Join(t.TempDir(), "nope"), FernetKey: key})
		assert.Error(t, err)
	})
}
