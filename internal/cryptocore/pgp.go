package cryptocore

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

// pgpAgentBanner is the human-readable line placed between the MIME
// preamble and the first boundary of a PGP/MIME envelope, matching the
// convention of naming the encrypting agent there.
const pgpAgentBanner = "OpenPGP/MIME message (Automatically encrypted by cryptomail)"

// EncryptPGP builds the multipart/encrypted envelope of §4.5: it armors and
// encrypts inner to every recipient key, under algo, and appends the
// resulting MIME structure to outer.
func EncryptPGP(outer, inner []byte, certs []RecipientKey, algo Algorithm) ([]byte, error) {
	recipients, err := parsePGPRecipients(certs)
	if err != nil {
		return nil, err
	}

	cipher := packet.CipherAES256
	if algo == Aes128 {
		cipher = packet.CipherAES128
	}
	cfg := &packet.Config{
		DefaultCipher: cipher,
		Rand:          rand.Reader,
	}

	pgpBuf := &bytes.Buffer{}
	asciiWriter, err := armor.Encode(pgpBuf, "PGP MESSAGE", nil)
	if err != nil {
		return nil, wrapError(KindEncodingFailure, "failed to set up armor writer", err)
	}

	pgpWriter, err := openpgp.Encrypt(asciiWriter, recipients, nil, &openpgp.FileHints{IsBinary: true}, cfg)
	if err != nil {
		return nil, wrapError(KindCryptoFailure, "failed to set up PGP encryption", err)
	}
	if _, err := pgpWriter.Write(inner); err != nil {
		return nil, wrapError(KindCryptoFailure, "failed to write plaintext to PGP encryptor", err)
	}
	if err := pgpWriter.Close(); err != nil {
		return nil, wrapError(KindCryptoFailure, "failed to finalize PGP encryption", err)
	}
	if err := asciiWriter.Close(); err != nil {
		return nil, wrapError(KindEncodingFailure, "failed to finalize armor", err)
	}

	boundary, err := generateBoundary()
	if err != nil {
		return nil, wrapError(KindEncodingFailure, "failed to generate MIME boundary", err)
	}

	out := &bytes.Buffer{}
	out.Write(outer)
	fmt.Fprintf(out, "Content-Type: multipart/encrypted;\r\n"+
		"\tprotocol=\"application/pgp-encrypted\";\r\n"+
		"\tboundary=\"%s\"\r\n\r\n", boundary)
	fmt.Fprintf(out, "%s\r\n\r\n", pgpAgentBanner)
	fmt.Fprintf(out, "--%s\r\n"+
		"Content-Type: application/pgp-encrypted\r\n"+
		"Version: 1\r\n\r\n", boundary)
	fmt.Fprintf(out, "--%s\r\n"+
		"Content-Type: application/octet-stream; name=\"encrypted.asc\"\r\n"+
		"Content-Disposition: inline; filename=\"encrypted.asc\"\r\n\r\n", boundary)
	out.Write(pgpBuf.Bytes())
	fmt.Fprintf(out, "\r\n--%s--\r\n", boundary)

	return out.Bytes(), nil
}

func parsePGPRecipients(certs []RecipientKey) ([]*openpgp.Entity, error) {
	recipients := make([]*openpgp.Entity, 0, len(certs))
	for _, c := range certs {
		keyring, err := openpgp.ReadKeyRing(bytes.NewReader(c))
		if err != nil || len(keyring) == 0 {
			return nil, wrapError(KindInvalidCertificate, "failed to parse recipient OpenPGP key", err)
		}
		recipients = append(recipients, keyring[0])
	}
	return recipients, nil
}

// generateBoundary creates a random MIME boundary string.
func generateBoundary() (string, error) {
	buf := make([]byte, 30)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", buf), nil
}

// DecryptPGP reverses EncryptPGP given the armored ciphertext (the body of
// the "encrypted.asc" part) and the recipient's private key entity. No
// S/MIME equivalent exists, and the mailbox delivery pipeline never calls
// it (it holds no private keys); it is used by this package's tests to
// check that EncryptPGP output decrypts back to the original plaintext.
func DecryptPGP(armored []byte, privateKey *openpgp.Entity) ([]byte, error) {
	block, err := armor.Decode(bytes.NewReader(armored))
	if err != nil {
		return nil, wrapError(KindEncodingFailure, "failed to de-armor PGP message", err)
	}
	md, err := openpgp.ReadMessage(block.Body, openpgp.EntityList{privateKey}, nil, nil)
	if err != nil {
		return nil, wrapError(KindCryptoFailure, "failed to decrypt PGP message", err)
	}
	plain, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return nil, wrapError(KindCryptoFailure, "failed to read decrypted PGP message", err)
	}
	return plain, nil
}
