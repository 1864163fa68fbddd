package crypto

import "testing"

func TestEncryptorRoundTrip(t *testing.T) {
	enc, err := NewEncryptor([]byte("short key, derived via sha-256"))
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	tests := []struct {
		name      string
		plaintext string
	}{
		{"access token", "ya29.a0AfH6SMBx-token-value"},
		{"refresh token", "1//0gXYZ-refresh-value"},
		{"empty", ""},
		{"unicode", "токен 토큰"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, err := enc.Encrypt(tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt: %v", err)
			}
			if tt.plaintext != "" && ct == tt.plaintext {
				t.Fatal("ciphertext equals plaintext")
			}
			pt, err := enc.Decrypt(ct)
			if err != nil {
				t.Fatalf("Decrypt: %v", err)
			}
			if pt != tt.plaintext {
				t.Fatalf("round trip mismatch: got %q want %q", pt, tt.plaintext)
			}
		})
	}
}

func TestEncryptNondeterministic(t *testing.T) {
	enc, err := NewEncryptor([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	a, _ := enc.Encrypt("same input")
	b, _ := enc.Encrypt("same input")
	if a == b {
		t.Fatal("expected distinct ciphertexts for repeated encryptions")
	}
}

func TestIsEncrypted(t *testing.T) {
	enc, err := NewEncryptor([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	ct, _ := enc.Encrypt("a plaintext token")
	if !IsEncrypted(ct) {
		t.Fatal("ciphertext not recognized as encrypted")
	}
	if IsEncrypted("ya29.plaintext-google-token") {
		t.Fatal("plaintext token misdetected as encrypted")
	}
	if IsEncrypted("") {
		t.Fatal("empty string misdetected as encrypted")
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	enc, err := NewEncryptor([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	if _, err := enc.Decrypt("AAAA"); err == nil {
		t.Fatal("expected error for truncated ciphertext")
	}
}
