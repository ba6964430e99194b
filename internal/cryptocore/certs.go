package cryptocore

import (
	"bytes"
	"crypto/x509"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// ParseCertificateBundle ingests a raw byte blob — PEM-armored, raw DER
// X.509, or raw binary OpenPGP — and returns the homogeneous method plus the
// recipient keys found. A bundle that mixes PGP and S/MIME material is
// rejected.
func ParseCertificateBundle(data []byte) (EncryptionMethod, []RecipientKey, error) {
	if method, certs, ok, err := scanPEM(data); err != nil {
		return 0, nil, err
	} else if ok {
		return method, certs, nil
	}

	if cert, err := x509.ParseCertificate(data); err == nil {
		return MethodSMIME, []RecipientKey{cert.Raw}, nil
	}

	if keyring, err := openpgp.ReadKeyRing(bytes.NewReader(data)); err == nil && len(keyring) > 0 {
		raw, err := encodeEntity(keyring[0])
		if err != nil {
			return 0, nil, wrapError(KindInvalidCertificate, "failed to re-encode OpenPGP key", err)
		}
		return MethodPGP, []RecipientKey{raw}, nil
	}

	return 0, nil, newError(KindInvalidCertificate, "could not find any valid certificates")
}

func encodeEntity(e *openpgp.Entity) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := e.Serialize(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// scanPEM implements the PEM block state machine: skip whitespace until the
// first '-', classify each BEGIN tag as CERTIFICATE/PGP/unknown, reject
// bundles whose blocks disagree on method, and silently skip unknown blocks.
// ok is false when the input isn't PEM at all (no leading '-' found), which
// lets the caller fall through to the raw-DER/raw-PGP attempts.
func scanPEM(data []byte) (EncryptionMethod, []RecipientKey, bool, error) {
	s := string(data)
	i := 0
	for i < len(s) && isPEMSpace(s[i]) {
		i++
	}
	if i >= len(s) || s[i] != '-' {
		return 0, nil, false, nil
	}

	var method EncryptionMethod
	var certs []RecipientKey

	for i < len(s) {
		for i < len(s) && isPEMSpace(s[i]) {
			i++
		}
		if i >= len(s) {
			break
		}
		if s[i] != '-' {
			// Stray non-PEM byte between blocks; nothing more to parse.
			break
		}

		tagStart := i
		nl := strings.IndexByte(s[tagStart:], '\n')
		if nl < 0 {
			break
		}
		tagLine := strings.ToUpper(s[tagStart : tagStart+nl])

		isCert := strings.Contains(tagLine, "CERTIFICATE")
		isPGP := strings.Contains(tagLine, "PGP")

		bodyStart := tagStart + nl + 1
		endIdx := strings.Index(s[bodyStart:], "-----END")
		if endIdx < 0 {
			break
		}
		blockEndLineIdx := strings.IndexByte(s[bodyStart+endIdx:], '\n')
		var blockEnd int
		if blockEndLineIdx < 0 {
			blockEnd = len(s)
		} else {
			blockEnd = bodyStart + endIdx + blockEndLineIdx + 1
		}

		if isCert || isPGP {
			thisMethod := MethodSMIME
			if isPGP {
				thisMethod = MethodPGP
			}
			if method != 0 && method != thisMethod {
				return 0, nil, true, newError(KindMixedMethods, "cannot mix PGP and S/MIME certificates")
			}

			if thisMethod == MethodSMIME {
				body := s[bodyStart : bodyStart+endIdx]
				raw, err := decodeBase64Block(body)
				if err != nil {
					return 0, nil, true, wrapError(KindInvalidCertificate, "failed to decode PEM block body", err)
				}
				cert, err := x509.ParseCertificate(raw)
				if err != nil {
					return 0, nil, true, wrapError(KindInvalidCertificate, "failed to parse X.509 certificate", err)
				}
				certs = append(certs, RecipientKey(cert.Raw))
			} else {
				// OpenPGP armor may carry header lines and a CRC24 checksum
				// line, so the whole block goes through the armor decoder.
				keyring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(s[tagStart:blockEnd]))
				if err != nil || len(keyring) == 0 {
					return 0, nil, true, wrapError(KindInvalidCertificate, "failed to parse OpenPGP public key", err)
				}
				enc, err := encodeEntity(keyring[0])
				if err != nil {
					return 0, nil, true, wrapError(KindInvalidCertificate, "failed to re-encode OpenPGP key", err)
				}
				certs = append(certs, RecipientKey(enc))
			}
			method = thisMethod
		}

		i = blockEnd
	}

	if method == 0 {
		return 0, nil, false, nil
	}
	return method, certs, true, nil
}

func isPEMSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

// decodeBase64Block decodes a PEM block body, ignoring embedded whitespace.
func decodeBase64Block(body string) ([]byte, error) {
	var clean strings.Builder
	clean.Grow(len(body))
	for _, r := range body {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			continue
		}
		clean.WriteRune(r)
	}
	return stdBase64Decode(clean.String())
}
