package cryptocore

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

func generateTestCertPEM(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %s", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test recipient"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %s", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func generateTestPGPPublicKeyPEM(t *testing.T) []byte {
	t.Helper()
	entity, err := openpgp.NewEntity("Test Recipient", "", "test@example.com", nil)
	if err != nil {
		t.Fatalf("failed to generate PGP entity: %s", err)
	}
	buf := &bytes.Buffer{}
	w, err := armor.Encode(buf, "PGP PUBLIC KEY BLOCK", nil)
	if err != nil {
		t.Fatalf("failed to set up armor writer: %s", err)
	}
	if err := entity.Serialize(w); err != nil {
		t.Fatalf("failed to serialize PGP entity: %s", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close armor writer: %s", err)
	}
	return buf.Bytes()
}

func TestParseCertificateBundleSMIME(t *testing.T) {
	pemBytes := generateTestCertPEM(t)
	method, certs, err := ParseCertificateBundle(pemBytes)
	if err != nil {
		t.Fatalf("ParseCertificateBundle failed: %s", err)
	}
	if method != MethodSMIME {
		t.Fatalf("expected MethodSMIME, got %v", method)
	}
	if len(certs) != 1 {
		t.Fatalf("expected 1 cert, got %d", len(certs))
	}
}

func TestParseCertificateBundlePGP(t *testing.T) {
	pemBytes := generateTestPGPPublicKeyPEM(t)
	method, certs, err := ParseCertificateBundle(pemBytes)
	if err != nil {
		t.Fatalf("ParseCertificateBundle failed: %s", err)
	}
	if method != MethodPGP {
		t.Fatalf("expected MethodPGP, got %v", method)
	}
	if len(certs) != 1 {
		t.Fatalf("expected 1 cert, got %d", len(certs))
	}
}

func TestParseCertificateBundleMixedRejected(t *testing.T) {
	mixed := append(generateTestCertPEM(t), generateTestPGPPublicKeyPEM(t)...)
	_, _, err := ParseCertificateBundle(mixed)
	var cerr *CryptoError
	if !errors.As(err, &cerr) || cerr.Kind != KindMixedMethods {
		t.Fatalf("expected KindMixedMethods, got %v", err)
	}
}

func TestParseCertificateBundleUnknownBlocksSkipped(t *testing.T) {
	unknown := []byte("-----BEGIN FOO-----\nAAAA\n-----END FOO-----\n")
	bundle := append(unknown, generateTestCertPEM(t)...)
	method, certs, err := ParseCertificateBundle(bundle)
	if err != nil {
		t.Fatalf("ParseCertificateBundle failed: %s", err)
	}
	if method != MethodSMIME || len(certs) != 1 {
		t.Fatalf("expected 1 S/MIME cert with unknown block skipped, got method=%v certs=%d", method, len(certs))
	}
}

func TestParseCertificateBundleNoMatch(t *testing.T) {
	_, _, err := ParseCertificateBundle([]byte("not a certificate at all"))
	var cerr *CryptoError
	if !errors.As(err, &cerr) || cerr.Kind != KindInvalidCertificate {
		t.Fatalf("expected KindInvalidCertificate, got %v", err)
	}
}
