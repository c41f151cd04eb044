// Package secretbox cifra secretos en reposo (access/refresh tokens de
// providers). Formato de salida: base64(nonce)|base64(ciphertext).
//
// Soporta dos algoritmos, elegibles por config:
//   - "aes-gcm"  (default): AES-256-GCM
//   - "xchacha20": XChaCha20-Poly1305 (nonce de 24 bytes, golang.org/x/crypto)
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// EnvMasterKey es la variable de entorno con la clave maestra (base64, 32 bytes).
	EnvMasterKey = "CAMPUSID_MASTER_KEY"

	requiredKeyLength = 32  // 32 bytes => AES-256 / XChaCha20
	sep               = "|" // nonce|ciphertext (ambos en base64)
)

// Algoritmos soportados.
const (
	AlgoAESGCM    = "aes-gcm"
	AlgoXChaCha20 = "xchacha20"
)

var (
	// ErrFormat indica un ciphertext que no respeta base64(nonce)|base64(ct).
	ErrFormat = errors.New("secretbox: formato inválido, esperado base64(nonce)|base64(ciphertext)")
	// ErrKeyLength indica una clave que no decodifica a 32 bytes.
	ErrKeyLength = errors.New("secretbox: la clave debe decodificar a 32 bytes")
)

// Cipher es un cifrador simétrico puro (sin estado mutable, seguro para uso
// concurrente). Encrypt/Decrypt no tienen efectos secundarios.
type Cipher struct {
	key  []byte
	algo string
}

// New crea un Cipher con una clave cruda de 32 bytes.
func New(key []byte, algo string) (*Cipher, error) {
	if len(key) != requiredKeyLength {
		return nil, fmt.Errorf("%w: obtuvo %d", ErrKeyLength, len(key))
	}
	switch algo {
	case "", AlgoAESGCM:
		algo = AlgoAESGCM
	case AlgoXChaCha20:
	default:
		return nil, fmt.Errorf("secretbox: algoritmo desconocido %q", algo)
	}
	k := make([]byte, requiredKeyLength)
	copy(k, key)
	return &Cipher{key: k, algo: algo}, nil
}

// NewFromEncodedKey acepta una clave en base64 (std o raw), hex o cruda.
func NewFromEncodedKey(key string, algo string) (*Cipher, error) {
	kb, err := decodeKey(key)
	if err != nil {
		return nil, err
	}
	return New(kb, algo)
}

// NewFromEnv carga la clave maestra desde CAMPUSID_MASTER_KEY (base64).
func NewFromEnv(algo string) (*Cipher, error) {
	kb64 := strings.TrimSpace(os.Getenv(EnvMasterKey))
	if kb64 == "" {
		return nil, fmt.Errorf("secretbox: %s no seteada; genere una clave con: openssl rand -base64 32", EnvMasterKey)
	}
	return NewFromEncodedKey(kb64, algo)
}

// Algo expone el algoritmo configurado (útil para healthchecks/config print).
func (c *Cipher) Algo() string { return c.algo }

// Encrypt cifra plainText y devuelve base64(nonce)|base64(ciphertext).
func (c *Cipher) Encrypt(plainText string) (string, error) {
	aead, err := c.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secretbox: nonce random: %w", err)
	}

	ct := aead.Seal(nil, nonce, []byte(plainText), nil)

	nonceB64 := base64.StdEncoding.EncodeToString(nonce)
	ctB64 := base64.StdEncoding.EncodeToString(ct)
	return nonceB64 + sep + ctB64, nil
}

// Decrypt recibe base64(nonce)|base64(ciphertext) y devuelve el texto plano.
func (c *Cipher) Decrypt(cipherText string) (string, error) {
	aead, err := c.aead()
	if err != nil {
		return "", err
	}

	parts := strings.Split(cipherText, sep)
	if len(parts) != 2 {
		return "", ErrFormat
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("secretbox: decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("secretbox: decode ciphertext: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return "", fmt.Errorf("secretbox: nonce inválido: esperado %d bytes, obtuvo %d", aead.NonceSize(), len(nonce))
	}

	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("secretbox: auth/decrypt: %w", err)
	}
	return string(pt), nil
}

// LooksEncrypted es un heurístico rápido: el separador de nonce sólo aparece
// en valores producidos por Encrypt. Usado para tolerar secrets en texto
// plano en configs de desarrollo.
func LooksEncrypted(s string) bool {
	return strings.Contains(s, sep)
}

func (c *Cipher) aead() (cipher.AEAD, error) {
	switch c.algo {
	case AlgoXChaCha20:
		return chacha20poly1305.NewX(c.key)
	default:
		block, err := aes.NewCipher(c.key)
		if err != nil {
			return nil, fmt.Errorf("secretbox: aes.NewCipher: %w", err)
		}
		return cipher.NewGCM(block)
	}
}

// decodeKey intenta base64 (std), base64 (raw), hex y finalmente raw bytes.
func decodeKey(key string) ([]byte, error) {
	key = strings.TrimSpace(key)

	if b, err := base64.StdEncoding.DecodeString(key); err == nil && len(b) == requiredKeyLength {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(key); err == nil && len(b) == requiredKeyLength {
		return b, nil
	}
	if len(key) == 64 {
		if h, err := hex.DecodeString(key); err == nil && len(h) == requiredKeyLength {
			return h, nil
		}
	}
	if len(key) == requiredKeyLength {
		return []byte(key), nil
	}
	return nil, fmt.Errorf("%w: obtuvo %d caracteres", ErrKeyLength, len(key))
}
