package cryptocore

import (
	"bytes"
	"encoding/binary"
	"io"
)

// paramsVersion is the only version byte understood today. Bump this and
// branch on it when the wire format changes; never reuse an old value for a
// different layout.
const paramsVersion = 0x01

// Serialize encodes p into the versioned binary envelope: a leading version
// byte followed by a compact, length-prefixed encoding of the fields in a
// stable order (method, algo, certs).
func Serialize(p *EncryptionParams) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	buf.WriteByte(paramsVersion)
	buf.WriteByte(byte(p.Method))
	buf.WriteByte(byte(p.Algo))
	if err := binary.Write(buf, binary.BigEndian, uint32(len(p.Certs))); err != nil {
		return nil, wrapError(KindEncodingFailure, "failed to encode cert count", err)
	}
	for _, c := range p.Certs {
		if err := binary.Write(buf, binary.BigEndian, uint32(len(c))); err != nil {
			return nil, wrapError(KindEncodingFailure, "failed to encode cert length", err)
		}
		buf.Write(c)
	}
	return buf.Bytes(), nil
}

// Deserialize reverses Serialize. A leading byte other than the current
// version, or a truncated payload, returns a KindUnknownVersion /
// KindInvalidParams error respectively.
func Deserialize(data []byte) (*EncryptionParams, error) {
	if len(data) < 1 {
		return nil, newError(KindInvalidParams, "empty payload")
	}
	if data[0] != paramsVersion {
		return nil, newError(KindUnknownVersion, "unrecognized params version byte")
	}
	r := bytes.NewReader(data[1:])
	if r.Len() == 0 {
		return nil, newError(KindInvalidParams, "payload has no body after version byte")
	}

	methodByte, err := r.ReadByte()
	if err != nil {
		return nil, wrapError(KindInvalidParams, "truncated method field", err)
	}
	algoByte, err := r.ReadByte()
	if err != nil {
		return nil, wrapError(KindInvalidParams, "truncated algo field", err)
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, wrapError(KindInvalidParams, "truncated cert count", err)
	}

	certs := make([]RecipientKey, 0, count)
	for i := uint32(0); i < count; i++ {
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, wrapError(KindInvalidParams, "truncated cert length", err)
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, wrapError(KindInvalidParams, "truncated cert body", err)
		}
		certs = append(certs, buf)
	}

	p := &EncryptionParams{
		Method: EncryptionMethod(methodByte),
		Algo:   Algorithm(algoByte),
		Certs:  certs,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
