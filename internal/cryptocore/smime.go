package cryptocore

import (
	"bytes"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"sync"

	"go.mozilla.org/pkcs7"
)

// pkcs7Mutex serializes access to go.mozilla.org/pkcs7's package-level
// ContentEncryptionAlgorithm variable. The library selects the cipher
// through that global rather than a per-call argument, so concurrent
// callers encrypting under different algorithms would otherwise race; this
// mutex makes "set the global, call Encrypt, read the result" atomic.
var pkcs7Mutex sync.Mutex

// EncryptSMIME builds the application/pkcs7-mime enveloped-data part of
// §4.6: AES-CBC encrypts inner under a fresh key/IV, RSA-PKCS1v15-wraps
// that key for every recipient certificate, and appends the base64-encoded
// CMS ContentInfo to outer.
func EncryptSMIME(outer, inner []byte, certs []RecipientKey, algo Algorithm) ([]byte, error) {
	recipients, err := parseSMIMERecipients(certs)
	if err != nil {
		return nil, err
	}

	der, err := encryptCMS(inner, recipients, algo)
	if err != nil {
		return nil, err
	}

	out := &bytes.Buffer{}
	out.Write(outer)
	out.WriteString("Content-Type: application/pkcs7-mime;\r\n" +
		"\tname=\"smime.p7m\";\r\n" +
		"\tsmime-type=enveloped-data\r\n" +
		"Content-Disposition: attachment;\r\n" +
		"\tfilename=\"smime.p7m\"\r\n" +
		"Content-Transfer-Encoding: base64\r\n\r\n")
	writeBase64Wrapped(out, der)
	out.WriteString("\r\n")

	return out.Bytes(), nil
}

func encryptCMS(inner []byte, recipients []*x509.Certificate, algo Algorithm) ([]byte, error) {
	pkcs7Mutex.Lock()
	defer pkcs7Mutex.Unlock()

	switch algo {
	case Aes128:
		pkcs7.ContentEncryptionAlgorithm = pkcs7.EncryptionAlgorithmAES128CBC
	case Aes256:
		pkcs7.ContentEncryptionAlgorithm = pkcs7.EncryptionAlgorithmAES256CBC
	default:
		return nil, newError(KindInvalidParams, "unsupported S/MIME algorithm")
	}

	der, err := pkcs7.Encrypt(inner, recipients)
	if err != nil {
		return nil, wrapError(KindCryptoFailure, "CMS enveloped-data construction failed", err)
	}
	return der, nil
}

func parseSMIMERecipients(certs []RecipientKey) ([]*x509.Certificate, error) {
	recipients := make([]*x509.Certificate, 0, len(certs))
	for _, c := range certs {
		cert, err := x509.ParseCertificate(c)
		if err != nil {
			return nil, wrapError(KindInvalidCertificate, "failed to parse recipient certificate", err)
		}
		recipients = append(recipients, cert)
	}
	return recipients, nil
}

// writeBase64Wrapped writes data as standard base64, wrapped at 76 columns
// with CRLF line endings, matching the MIME "base64" content-transfer
// encoding.
func writeBase64Wrapped(out *bytes.Buffer, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	const lineLen = 76
	for i := 0; i < len(encoded); i += lineLen {
		end := i + lineLen
		if end > len(encoded) {
			end = len(encoded)
		}
		fmt.Fprintf(out, "%s\r\n", encoded[i:end])
	}
}
