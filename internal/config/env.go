package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/scrypt"
)

// EncryptedPrefix marks a value produced by EnvManager.Encrypt.
const EncryptedPrefix = "ENC:"

const keySalt = "schwabgw-salt"

// EnvManager reads prefixed environment variables and decrypts ENC: values.
type EnvManager struct {
	encryptionKey []byte
	prefix        string
	lookup        func(string) (string, bool)
}

// NewEnvManager creates an environment variable manager. The AES key is
// derived from encryptionKey; with no key, ENC: values cannot be read.
func NewEnvManager(encryptionKey string, prefix string) *EnvManager {
	em := &EnvManager{
		prefix: prefix,
		lookup: os.LookupEnv,
	}
	if encryptionKey != "" {
		// Derive encryption key from password
		em.encryptionKey, _ = scrypt.Key([]byte(encryptionKey), []byte(keySalt), 32768, 8, 1, 32)
	}
	return em
}

// WithPrefix returns a manager sharing the derived key under another prefix.
func (em *EnvManager) WithPrefix(prefix string) *EnvManager {
	return &EnvManager{
		encryptionKey: em.encryptionKey,
		prefix:        prefix,
		lookup:        em.lookup,
	}
}

// Name returns the full variable name for key.
func (em *EnvManager) Name(key string) string {
	return em.prefix + strings.ToUpper(key)
}

// Lookup returns the raw value and whether it is set and non-empty.
func (em *EnvManager) Lookup(key string) (string, bool) {
	value, ok := em.lookup(em.Name(key))
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// GetString gets a string environment variable
func (em *EnvManager) GetString(key string, defaultValue string) string {
	if value, ok := em.Lookup(key); ok {
		return value
	}
	return defaultValue
}

// GetInt gets an integer environment variable
func (em *EnvManager) GetInt(key string, defaultValue int) (int, error) {
	value, ok := em.Lookup(key)
	if !ok {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid integer %q", em.Name(key), value)
	}
	return intValue, nil
}

// GetBool gets a boolean environment variable
func (em *EnvManager) GetBool(key string, defaultValue bool) (bool, error) {
	value, ok := em.Lookup(key)
	if !ok {
		return defaultValue, nil
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid boolean %q", em.Name(key), value)
	}
	return boolValue, nil
}

// GetDuration gets a duration environment variable
func (em *EnvManager) GetDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := em.Lookup(key)
	if !ok {
		return defaultValue, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid duration %q", em.Name(key), value)
	}
	return duration, nil
}

// GetEncryptedString gets a string variable, decrypting it when it carries the ENC: prefix.
func (em *EnvManager) GetEncryptedString(key string, defaultValue string) (string, error) {
	value, ok := em.Lookup(key)
	if !ok {
		return defaultValue, nil
	}
	if !strings.HasPrefix(value, EncryptedPrefix) {
		return value, nil
	}
	decrypted, err := em.Decrypt(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", em.Name(key), err)
	}
	return decrypted, nil
}

// Encrypt returns plaintext encrypted and marked with the ENC: prefix.
func (em *EnvManager) Encrypt(plaintext string) (string, error) {
	if em.encryptionKey == nil {
		return "", fmt.Errorf("encryption key not set")
	}
	block, err := aes.NewCipher(em.encryptionKey)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(plaintext))
	iv := ciphertext[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], []byte(plaintext))

	return EncryptedPrefix + base64.URLEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. The ENC: prefix is optional.
func (em *EnvManager) Decrypt(value string) (string, error) {
	if em.encryptionKey == nil {
		return "", fmt.Errorf("encrypted value but no encryption key set")
	}
	ciphertext, err := base64.URLEncoding.DecodeString(strings.TrimPrefix(value, EncryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode encrypted value: %w", err)
	}

	block, err := aes.NewCipher(em.encryptionKey)
	if err != nil {
		return "", err
	}

	if len(ciphertext) < aes.BlockSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	iv := ciphertext[:aes.BlockSize]
	ciphertext = ciphertext[aes.BlockSize:]

	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(ciphertext, ciphertext)

	return string(ciphertext), nil
}

// Missing lists the full names of required keys that are unset.
func (em *EnvManager) Missing(required []string) []string {
	var missing []string
	for _, key := range required {
		if _, ok := em.Lookup(key); !ok {
			missing = append(missing, em.Name(key))
		}
	}
	return missing
}
