package cryptocore

import (
	"path/filepath"
	"strings"
)

var pkcs7Extensions = map[string]bool{
	"p7m": true,
	"p7s": true,
	"p7c": true,
	"p7z": true,
}

// IsEncrypted reports whether msg's top-level Content-Type already marks it
// as an encrypted message, in which case Encrypt must refuse to re-encrypt
// it.
func IsEncrypted(msg ParsedMessage) bool {
	typ, subtype, ok := msg.ContentType()
	if !ok {
		return false
	}
	typ = strings.ToLower(typ)
	subtype = strings.ToLower(subtype)

	switch {
	case typ == "application" && (subtype == "pkcs7-mime" || subtype == "pkcs7-signature"):
		return true
	case typ == "multipart" && subtype == "encrypted":
		return true
	case typ == "application" && subtype == "octet-stream":
		name, ok := msg.AttachmentFilename()
		if !ok {
			return false
		}
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
		return pkcs7Extensions[ext]
	default:
		return false
	}
}
