package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// encryptedPrefix marks values written by EncryptCredential so that
// hand-edited plaintext credentials are still accepted on load.
const encryptedPrefix = "enc:"

const pbkdf2Iterations = 100000

// SecurityManager handles encryption and decryption of stored credentials
type SecurityManager interface {
	EncryptCredential(plaintext string) (string, error)
	DecryptCredential(ciphertext string) (string, error)
	SecureKeyExists() bool
}

// AESSecurityManager implements SecurityManager using AES-256-GCM with a key
// derived through PBKDF2 from a stored salt and a machine passphrase
type AESSecurityManager struct {
	keyPath   string
	masterKey []byte
}

// NewSecurityManager loads the key material at keyPath, creating it if missing
func NewSecurityManager(keyPath string) (*AESSecurityManager, error) {
	manager := &AESSecurityManager{keyPath: keyPath}

	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create security directory: %w", err)
	}

	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		if err := manager.generateKey(); err != nil {
			return nil, err
		}
		return manager, nil
	}

	if err := manager.loadKey(); err != nil {
		return nil, err
	}
	return manager, nil
}

func getSecurityKeyPath() (string, error) {
	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return filepath.Join(xdgDataHome, "garage", "security", "master.key"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "garage", "security", "master.key"), nil
}

func (s *AESSecurityManager) loadKey() error {
	keyData, err := os.ReadFile(s.keyPath)
	if err != nil {
		return fmt.Errorf("failed to read master key file: %w", err)
	}

	salt, err := hex.DecodeString(strings.TrimSpace(string(keyData)))
	if err != nil {
		return fmt.Errorf("failed to decode key material: %w", err)
	}

	s.masterKey = deriveKey(salt)
	return nil
}

func (s *AESSecurityManager) generateKey() error {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate random salt: %w", err)
	}

	if err := os.WriteFile(s.keyPath, []byte(hex.EncodeToString(salt)), 0600); err != nil {
		return fmt.Errorf("failed to write key material: %w", err)
	}

	s.masterKey = deriveKey(salt)
	return nil
}

func deriveKey(salt []byte) []byte {
	return pbkdf2.Key([]byte(machinePassphrase()), salt, pbkdf2Iterations, 32, sha256.New)
}

func machinePassphrase() string {
	hostname, _ := os.Hostname()
	username := os.Getenv("USER")
	if username == "" {
		username = os.Getenv("USERNAME")
	}
	return fmt.Sprintf("garage-security-%s-%s", hostname, username)
}

// SecureKeyExists checks if encryption key material is available
func (s *AESSecurityManager) SecureKeyExists() bool {
	_, err := os.Stat(s.keyPath)
	return err == nil
}

// EncryptCredential encrypts plaintext with AES-256-GCM
func (s *AESSecurityManager) EncryptCredential(plaintext string) (string, error) {
	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptCredential reverses EncryptCredential. Values without the
// encrypted prefix are returned unchanged.
func (s *AESSecurityManager) DecryptCredential(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, encryptedPrefix) {
		return ciphertext, nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, encryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

func (s *AESSecurityManager) gcm() (cipher.AEAD, error) {
	if len(s.masterKey) == 0 {
		return nil, fmt.Errorf("encryption key not available")
	}
	block, err := aes.NewCipher(s.masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
