package cryptocore

import "encoding/base64"

// stdBase64Decode decodes standard base64 with or without padding, matching
// what real-world PEM bodies (and the bundles uploaded through the
// certificate form) tend to contain.
func stdBase64Decode(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
