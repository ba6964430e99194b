package cryptocore

import "testing"

type stubMessage struct {
	typ, subtype string
	haveCT       bool
	filename     string
	haveFilename bool
}

func (s *stubMessage) RawMessage() []byte    { return nil }
func (s *stubMessage) RootHeaders() []Header { return nil }
func (s *stubMessage) RootBodyOffset() int   { return 0 }

func (s *stubMessage) ContentType() (string, string, bool) {
	return s.typ, s.subtype, s.haveCT
}

func (s *stubMessage) AttachmentFilename() (string, bool) {
	return s.filename, s.haveFilename
}

func TestIsEncrypted(t *testing.T) {
	cases := []struct {
		name string
		msg  *stubMessage
		want bool
	}{
		{"multipart-encrypted", &stubMessage{typ: "multipart", subtype: "encrypted", haveCT: true}, true},
		{"pkcs7-mime", &stubMessage{typ: "application", subtype: "pkcs7-mime", haveCT: true}, true},
		{"pkcs7-signature", &stubMessage{typ: "APPLICATION", subtype: "PKCS7-SIGNATURE", haveCT: true}, true},
		{"octet-stream-p7m", &stubMessage{typ: "application", subtype: "octet-stream", haveCT: true, filename: "foo.P7M", haveFilename: true}, true},
		{"octet-stream-bin", &stubMessage{typ: "application", subtype: "octet-stream", haveCT: true, filename: "foo.bin", haveFilename: true}, false},
		{"octet-stream-no-filename", &stubMessage{typ: "application", subtype: "octet-stream", haveCT: true}, false},
		{"text-plain", &stubMessage{typ: "text", subtype: "plain", haveCT: true}, false},
		{"no-content-type", &stubMessage{}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := IsEncrypted(c.msg)
			if got != c.want {
				t.Errorf("IsEncrypted(%+v) = %v, want %v", c.msg, got, c.want)
			}
		})
	}
}
