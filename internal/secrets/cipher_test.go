package secrets

import (
	"strings"
	"testing"
)

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipher("test-master-secret")
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}

	token := "EAAGm0PX4ZCpsBO1234567890"
	enc, err := c.Encrypt(token)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if strings.Contains(enc, token) {
		t.Fatal("ciphertext must not contain the plaintext")
	}

	dec, err := c.Decrypt(enc)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if dec != token {
		t.Errorf("expected %q, got %q", token, dec)
	}
}

func TestCipher_NoncesDiffer(t *testing.T) {
	c, _ := NewCipher("test-master-secret")

	a, _ := c.Encrypt("same plaintext")
	b, _ := c.Encrypt("same plaintext")
	if a == b {
		t.Fatal("two encryptions of the same plaintext should differ")
	}
}

func TestCipher_WrongKeyFails(t *testing.T) {
	c1, _ := NewCipher("secret-one")
	c2, _ := NewCipher("secret-two")

	enc, _ := c1.Encrypt("token")
	if _, err := c2.Decrypt(enc); err == nil {
		t.Fatal("decrypting with the wrong key should fail")
	}
}

func TestCipher_EmptyMasterSecret(t *testing.T) {
	if _, err := NewCipher(""); err == nil {
		t.Fatal("empty master secret should be rejected")
	}
}

func TestCipher_TamperedCiphertext(t *testing.T) {
	c, _ := NewCipher("test-master-secret")

	enc, _ := c.Encrypt("token")
	if _, err := c.Decrypt(enc[:len(enc)-4] + "AAAA"); err == nil {
		t.Fatal("tampered ciphertext should fail authentication")
	}
}
