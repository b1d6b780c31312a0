// Package crypto 提供敏感字段加密与脱敏工具
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

// 预定义错误
var (
	ErrInvalidKeySize   = errors.New("invalid key size: must be 16, 24, or 32 bytes")
	ErrCiphertextShort  = errors.New("ciphertext too short")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// AES 基于 AES-GCM 的字段加密器，用于落库的收款账户等敏感信息
type AES struct {
	aead cipher.AEAD
}

// NewAES 创建加密器，key 长度必须是 16、24 或 32 字节
func NewAES(key string) (*AES, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AES{aead: aead}, nil
}

// Encrypt 加密并返回 base64 编码的 nonce+密文
func (a *AES) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, a.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := a.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt 解密 Encrypt 的输出
func (a *AES) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	size := a.aead.NonceSize()
	if len(raw) < size {
		return "", ErrCiphertextShort
	}

	plain, err := a.aead.Open(nil, raw[:size], raw[size:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}

// MaskPhone 手机号脱敏，保留末四位
func MaskPhone(phone string) string {
	if len(phone) < 7 {
		return phone
	}
	return phone[:3] + strings.Repeat("*", len(phone)-7) + phone[len(phone)-4:]
}

// MaskEmail 邮箱脱敏
func MaskEmail(email string) string {
	i := strings.IndexByte(email, '@')
	if i <= 2 {
		return email
	}
	return email[:2] + "***" + email[i:]
}

// MaskRef 外部账户或支付凭证脱敏，如 acct_1Nv0FGQ9RKHgCVdK -> acct_****CVdK
func MaskRef(ref string) string {
	prefix := ""
	if i := strings.IndexByte(ref, '_'); i >= 0 {
		prefix, ref = ref[:i+1], ref[i+1:]
	}
	if len(ref) <= 4 {
		return prefix + ref
	}
	return prefix + "****" + ref[len(ref)-4:]
}
