package crypto

import (
	"context"
	"fmt"
	"strings"
)

const mockPrefix = "mock:"

// MockEncryptor implements Encryptor for local development (no KMS required).
// Values are stored as "mock:<subject>:<plaintext>" so they stay readable in a
// local table while still checking the subject binding.
type MockEncryptor struct{}

func NewMockEncryptor() *MockEncryptor {
	return &MockEncryptor{}
}

func (m *MockEncryptor) Encrypt(ctx context.Context, plaintext, subject string) (string, error) {
	return mockPrefix + subject + ":" + plaintext, nil
}

func (m *MockEncryptor) Decrypt(ctx context.Context, ciphertext, subject string) (string, error) {
	if ciphertext == "" {
		return "", ErrEmptyCiphertext
	}
	rest, ok := strings.CutPrefix(ciphertext, mockPrefix)
	if !ok {
		// Rows written before encryption was switched on.
		return ciphertext, nil
	}
	value, ok := strings.CutPrefix(rest, subject+":")
	if !ok {
		return "", fmt.Errorf("failed to decrypt data: subject mismatch")
	}
	return value, nil
}
