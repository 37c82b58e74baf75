package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	testKey := make([]byte, 32)
	rand.Read(testKey)
	os.Setenv("SITEDEPLOY_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(testKey))

	if err := InitEncryption(); err != nil {
		panic("Failed to initialize encryption for tests: " + err.Error())
	}

	code := m.Run()

	os.Unsetenv("SITEDEPLOY_ENCRYPTION_KEY")
	os.Exit(code)
}

func TestEncryptDecrypt(t *testing.T) {
	t.Run("Should encrypt and decrypt successfully", func(t *testing.T) {
		plaintext := "my-secret-password"

		encrypted, err := Encrypt(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, encrypted)
		assert.NotEmpty(t, encrypted)

		decrypted, err := Decrypt(encrypted)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	})

	t.Run("Should produce different ciphertexts for same plaintext", func(t *testing.T) {
		plaintext := "password123"

		encrypted1, err := Encrypt(plaintext)
		require.NoError(t, err)
		encrypted2, err := Encrypt(plaintext)
		require.NoError(t, err)

		// AES-GCM includes a random nonce, so ciphertexts differ.
		assert.NotEqual(t, encrypted1, encrypted2)

		decrypted1, err := Decrypt(encrypted1)
		require.NoError(t, err)
		decrypted2, err := Decrypt(encrypted2)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted1)
		assert.Equal(t, plaintext, decrypted2)
	})

	t.Run("Should fail gracefully with invalid ciphertext", func(t *testing.T) {
		_, err := Decrypt("invalid-base64-data!!!")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode base64")
	})

	t.Run("Should fail with ciphertext too short", func(t *testing.T) {
		shortCiphertext := base64.StdEncoding.EncodeToString([]byte("short"))

		_, err := Decrypt(shortCiphertext)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "ciphertext too short")
	})

	t.Run("Should handle special characters", func(t *testing.T) {
		plaintext := "p@ssw0rd!#$%^&*(){}[]|\\:;<>,.?/~`"

		encrypted, err := Encrypt(plaintext)
		require.NoError(t, err)

		decrypted, err := Decrypt(encrypted)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	})
}

func TestEncryptPassword(t *testing.T) {
	t.Run("Password helpers should round-trip", func(t *testing.T) {
		password := "test-password"

		encrypted, err := EncryptPassword(password)
		require.NoError(t, err)
		assert.NotEqual(t, password, encrypted)

		decrypted, err := DecryptPassword(encrypted)
		require.NoError(t, err)
		assert.Equal(t, password, decrypted)
	})
}

func TestInitEncryption(t *testing.T) {
	t.Run("Should hash a raw string key to 32 bytes", func(t *testing.T) {
		oldKey := encryptionKey
		encryptionKey = nil

		os.Setenv("SITEDEPLOY_ENCRYPTION_KEY", "test-encryption-key-raw-string")
		defer func() {
			encryptionKey = oldKey
			testKey := make([]byte, 32)
			rand.Read(testKey)
			os.Setenv("SITEDEPLOY_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(testKey))
		}()

		err := InitEncryption()
		require.NoError(t, err)
		assert.True(t, IsInitialized())
		assert.Len(t, encryptionKey, 32)
	})
}

func TestEncryptWithoutInitialization(t *testing.T) {
	t.Run("Should fail if encryption not initialized", func(t *testing.T) {
		oldKey := encryptionKey
		encryptionKey = nil
		defer func() { encryptionKey = oldKey }()

		_, err := Encrypt("test")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "encryption not initialized")

		_, err = Decrypt("test")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "encryption not initialized")
	})
}
