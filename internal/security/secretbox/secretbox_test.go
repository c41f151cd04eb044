package secretbox

import (
	"encoding/base64"
	"strings"
	"testing"
)

func testKey(seed byte) []byte {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = seed + byte(i)
	}
	return raw
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, algo := range []string{AlgoAESGCM, AlgoXChaCha20} {
		c, err := New(testKey(1), algo)
		if err != nil {
			t.Fatalf("New(%s) err: %v", algo, err)
		}

		msg := "hola mundo ✓ — secreto"
		ct, err := c.Encrypt(msg)
		if err != nil {
			t.Fatalf("Encrypt err: %v", err)
		}
		if ct == msg || !strings.Contains(ct, "|") {
			t.Fatalf("ciphertext no cifrado o formato inválido: %q", ct)
		}
		pt, err := c.Decrypt(ct)
		if err != nil {
			t.Fatalf("Decrypt err: %v", err)
		}
		if pt != msg {
			t.Fatalf("plaintext mismatch: got %q want %q", pt, msg)
		}
	}
}

func TestDecrypt_DetectsTamper(t *testing.T) {
	t.Parallel()

	c, err := New(testKey(200), AlgoAESGCM)
	if err != nil {
		t.Fatal(err)
	}
	ct, err := c.Encrypt("top secret")
	if err != nil {
		t.Fatalf("Encrypt err: %v", err)
	}
	parts := strings.Split(ct, "|")
	if len(parts) != 2 {
		t.Fatalf("unexpected ct format")
	}
	// corromper un byte del ciphertext (base64 -> bytes -> flip -> base64)
	bs, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatal(err)
	}
	bs[0] ^= 0x01
	parts[1] = base64.StdEncoding.EncodeToString(bs)

	if _, err := c.Decrypt(parts[0] + "|" + parts[1]); err == nil {
		t.Fatalf("expected auth error, got nil")
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	t.Parallel()

	c1, _ := New(testKey(1), AlgoAESGCM)
	c2, _ := New(testKey(2), AlgoAESGCM)

	ct, err := c1.Encrypt("secreto")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c2.Decrypt(ct); err == nil {
		t.Fatal("expected error decrypting with wrong key")
	}
}

func TestNew_RejectsBadKeyOrAlgo(t *testing.T) {
	t.Parallel()

	if _, err := New([]byte("short"), AlgoAESGCM); err == nil {
		t.Fatal("expected key length error")
	}
	if _, err := New(testKey(9), "rot13"); err == nil {
		t.Fatal("expected unknown algo error")
	}
}

func TestDecrypt_RejectsBadFormat(t *testing.T) {
	t.Parallel()

	c, _ := New(testKey(7), AlgoAESGCM)
	for _, in := range []string{"", "sin-separador", "a|b|c"} {
		if _, err := c.Decrypt(in); err == nil {
			t.Fatalf("expected format error for %q", in)
		}
	}
}
