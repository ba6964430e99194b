package cryptocore

import (
	"context"
	"errors"
	"testing"
)

func buildTestMessage(t *testing.T, raw []byte) ParsedMessage {
	t.Helper()
	msg, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage failed: %s", err)
	}
	return msg
}

func TestOrchestratorEncryptPGP(t *testing.T) {
	entity := generateTestPGPEntity(t)
	cert := serializePublicEntity(t, entity)
	params := &EncryptionParams{Method: MethodPGP, Algo: Aes256, Certs: []RecipientKey{cert}}

	raw := []byte("From: alice@example.com\r\nContent-Type: text/plain\r\n\r\nhello\r\n")
	msg := buildTestMessage(t, raw)

	o := NewOrchestrator(2)
	out, err := o.Encrypt(context.Background(), msg, params)
	if err != nil {
		t.Fatalf("Encrypt failed: %s", err)
	}
	if len(out) == 0 {
		t.Fatal("expected non-empty output")
	}
}

func TestOrchestratorRefusesAlreadyEncrypted(t *testing.T) {
	entity := generateTestPGPEntity(t)
	cert := serializePublicEntity(t, entity)
	params := &EncryptionParams{Method: MethodPGP, Algo: Aes256, Certs: []RecipientKey{cert}}

	raw := []byte("Content-Type: multipart/encrypted; boundary=x\r\n\r\nbody\r\n")
	msg := buildTestMessage(t, raw)

	o := NewOrchestrator(1)
	_, err := o.Encrypt(context.Background(), msg, params)
	if !errors.Is(err, ErrAlreadyEncrypted) {
		t.Fatalf("expected ErrAlreadyEncrypted, got %v", err)
	}
}

func TestOrchestratorRejectsInvalidParams(t *testing.T) {
	raw := []byte("Content-Type: text/plain\r\n\r\nhi\r\n")
	msg := buildTestMessage(t, raw)

	o := NewOrchestrator(1)
	_, err := o.Encrypt(context.Background(), msg, &EncryptionParams{Method: MethodPGP, Algo: Aes256})
	var cerr *CryptoError
	if !errors.As(err, &cerr) || cerr.Kind != KindNoCertificates {
		t.Fatalf("expected KindNoCertificates, got %v", err)
	}
}

func TestOrchestratorHonorsCancellation(t *testing.T) {
	entity := generateTestPGPEntity(t)
	cert := serializePublicEntity(t, entity)
	params := &EncryptionParams{Method: MethodPGP, Algo: Aes256, Certs: []RecipientKey{cert}}

	raw := []byte("Content-Type: text/plain\r\n\r\nhi\r\n")
	msg := buildTestMessage(t, raw)

	o := NewOrchestrator(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Encrypt(ctx, msg, params)
	if err == nil {
		t.Fatal("expected context cancellation error")
	}
}
