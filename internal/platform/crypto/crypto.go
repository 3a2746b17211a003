package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// AES-256-GCM によるトークン暗号化ユーティリティ。
// 暗号文の形式は "iv:authTag:encryptedData"（すべてHEX文字列）。
// 鍵は32バイト（= 64文字のHEX）で管理する。

const (
	keyLength = 32
	ivLength  = 16 // 128 bits
	tagLength = 16
)

var (
	// ErrInvalidKey は暗号化キーが不正な場合のエラー
	ErrInvalidKey = errors.New("encryption key must be 32 bytes (64 hex characters)")

	// ErrInvalidCiphertext は暗号文の形式が不正な場合のエラー
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
)

// Encryptor は平文トークンの暗号化・復号化を提供する
type Encryptor struct {
	key []byte
}

// NewEncryptor はHEX文字列の鍵から新しい Encryptor を作成する
func NewEncryptor(hexKey string) (*Encryptor, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(key) != keyLength {
		return nil, ErrInvalidKey
	}
	return &Encryptor{key: key}, nil
}

// Encrypt は平文を暗号化し "iv:authTag:encryptedData" 形式で返す
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, ivLength)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	// ランダムIV生成
	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	// Seal の出力は 暗号文 + 認証タグ の連結
	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	encrypted := sealed[:len(sealed)-tagLength]
	authTag := sealed[len(sealed)-tagLength:]

	return strings.Join([]string{
		hex.EncodeToString(iv),
		hex.EncodeToString(authTag),
		hex.EncodeToString(encrypted),
	}, ":"), nil
}

// Decrypt は "iv:authTag:encryptedData" 形式の暗号文を復号化する
// 改ざんを検知した場合はエラーを返す
func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	parts := strings.Split(ciphertext, ":")
	if len(parts) != 3 {
		return "", ErrInvalidCiphertext
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivLength {
		return "", ErrInvalidCiphertext
	}
	authTag, err := hex.DecodeString(parts[1])
	if err != nil || len(authTag) != tagLength {
		return "", ErrInvalidCiphertext
	}
	encrypted, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, ivLength)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, iv, append(encrypted, authTag...), nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}

	return string(plaintext), nil
}
