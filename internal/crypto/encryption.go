package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
)

var encryptionKey []byte

// InitEncryption loads the AES-256 key used for profile credentials.
// Resolution order:
//  1. SITEDEPLOY_ENCRYPTION_KEY environment variable (development/testing)
//  2. System keychain (production)
//  3. Generate a new key and store it in the keychain
func InitEncryption() error {
	if keyString := os.Getenv("SITEDEPLOY_ENCRYPTION_KEY"); keyString != "" {
		keyBytes, err := base64.StdEncoding.DecodeString(keyString)
		if err != nil || len(keyBytes) != 32 {
			// Not a valid base64 32-byte key; derive one from the raw string.
			hash := sha256.Sum256([]byte(keyString))
			encryptionKey = hash[:]
		} else {
			encryptionKey = keyBytes
		}
		return nil
	}

	key, err := GenerateOrLoadKey()
	if err != nil {
		return fmt.Errorf("failed to initialize encryption from keystore: %w", err)
	}
	encryptionKey = key
	return nil
}

// IsInitialized reports whether a key has been loaded.
func IsInitialized() bool {
	return len(encryptionKey) > 0
}

// Encrypt encrypts plaintext with AES-256-GCM and returns base64 ciphertext
// with the nonce prepended.
func Encrypt(plaintext string) (string, error) {
	gcm, err := newGCM()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt.
func Decrypt(ciphertextB64 string) (string, error) {
	gcm, err := newGCM()
	if err != nil {
		return "", err
	}

	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM() (cipher.AEAD, error) {
	if len(encryptionKey) == 0 {
		return nil, errors.New("encryption not initialized")
	}
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// EncryptPassword is a convenience wrapper for encrypting passwords
func EncryptPassword(password string) (string, error) {
	return Encrypt(password)
}

// DecryptPassword is a convenience wrapper for decrypting passwords
func DecryptPassword(encryptedPassword string) (string, error) {
	return Decrypt(encryptedPassword)
}
