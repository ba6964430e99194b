package cryptocore

import (
	"bufio"
	"bytes"
	"mime"
	"net/textproto"
	"strings"
)

// Header describes one header line's byte span within ParsedMessage's
// RawMessage, including its trailing CRLF (and any folded continuation
// lines).
type Header struct {
	Name       string
	FieldStart int
	FieldEnd   int
}

// ParsedMessage is the minimal view over an incoming message that the
// detector and splitter need. ParseMessage returns the concrete
// implementation used by the mailbox delivery pipeline and the upload
// self-test; tests can supply a trivial one directly.
type ParsedMessage interface {
	RawMessage() []byte
	RootHeaders() []Header
	RootBodyOffset() int
	ContentType() (typ, subtype string, ok bool)
	AttachmentFilename() (name string, ok bool)
}

// mimeHeaders is the set of header names that belong to the MIME envelope
// of a part, rather than to the message proper. Headers in this set are
// moved into the encrypted inner buffer; everything else stays visible in
// the outer envelope.
var mimeHeaders = map[string]bool{
	"Content-Type":              true,
	"Content-Transfer-Encoding": true,
	"Content-Disposition":       true,
	"Content-Id":                true,
	"Content-Description":       true,
	"Mime-Version":              true,
}

func isMIMEHeader(name string) bool {
	return mimeHeaders[textproto.CanonicalMIMEHeaderKey(name)]
}

// Split partitions msg's root headers into an outer buffer (kept visible in
// clear) and an inner buffer (MIME headers plus the full body; this is the
// plaintext that gets encrypted). Header order within each buffer is
// preserved from the original message.
func Split(msg ParsedMessage) (outer, inner []byte, err error) {
	raw := msg.RawMessage()
	var outerBuf, innerBuf bytes.Buffer

	for _, h := range msg.RootHeaders() {
		span := raw[h.FieldStart:h.FieldEnd]
		if isMIMEHeader(h.Name) {
			innerBuf.Write(span)
		} else {
			outerBuf.Write(span)
		}
	}

	innerBuf.WriteString("\r\n")
	innerBuf.Write(raw[msg.RootBodyOffset():])

	return outerBuf.Bytes(), innerBuf.Bytes(), nil
}

// message is the concrete ParsedMessage used outside of tests: it parses a
// raw RFC 5322 message's root headers and Content-Type on demand.
type message struct {
	raw         []byte
	headers     []Header
	bodyOffset  int
	contentType string
	dispParams  map[string]string
	ctParams    map[string]string
}

// ParseMessage parses raw into a ParsedMessage, recording the byte span of
// each root-level header line (folded continuation lines are included in
// the owning header's span) and the offset where the body begins.
func ParseMessage(raw []byte) (ParsedMessage, error) {
	m := &message{raw: raw}
	if err := m.parseHeaders(); err != nil {
		return nil, wrapError(KindInvalidCertificate, "failed to parse message headers", err)
	}
	return m, nil
}

func (m *message) parseHeaders() error {
	r := bufio.NewReader(bytes.NewReader(m.raw))
	offset := 0
	for {
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			// Unterminated header block (no blank line before EOF); treat
			// everything consumed so far as headers with no body.
			m.bodyOffset = offset
			return nil
		}
		lineLen := len(line)
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			offset += lineLen
			m.bodyOffset = offset
			break
		}

		start := offset
		end := offset + lineLen
		isContinuation := len(trimmed) > 0 && (trimmed[0] == ' ' || trimmed[0] == '\t')
		if isContinuation && len(m.headers) > 0 {
			m.headers[len(m.headers)-1].FieldEnd = end
		} else {
			name := trimmed
			if idx := strings.IndexByte(trimmed, ':'); idx >= 0 {
				name = trimmed[:idx]
			}
			m.headers = append(m.headers, Header{
				Name:       textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name)),
				FieldStart: start,
				FieldEnd:   end,
			})
		}
		offset = end
		if err != nil {
			m.bodyOffset = offset
			break
		}
	}
	return m.parseContentType()
}

func (m *message) parseContentType() error {
	for _, h := range m.headers {
		if h.Name != "Content-Type" && h.Name != "Content-Disposition" {
			continue
		}
		raw := string(m.raw[h.FieldStart:h.FieldEnd])
		_, val, ok := splitHeaderLine(raw)
		if !ok {
			continue
		}
		mediaType, params, err := mime.ParseMediaType(val)
		if err != nil {
			continue
		}
		if h.Name == "Content-Type" {
			m.contentType = mediaType
			m.ctParams = params
		} else {
			m.dispParams = params
		}
	}
	return nil
}

func splitHeaderLine(line string) (name, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	return line[:idx], strings.TrimSpace(strings.TrimRight(line[idx+1:], "\r\n")), true
}

func (m *message) RawMessage() []byte    { return m.raw }
func (m *message) RootHeaders() []Header { return m.headers }
func (m *message) RootBodyOffset() int   { return m.bodyOffset }

func (m *message) ContentType() (typ, subtype string, ok bool) {
	if m.contentType == "" {
		return "", "", false
	}
	parts := strings.SplitN(m.contentType, "/", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (m *message) AttachmentFilename() (string, bool) {
	if name, ok := m.dispParams["filename"]; ok && name != "" {
		return name, true
	}
	if name, ok := m.ctParams["name"]; ok && name != "" {
		return name, true
	}
	return "", false
}
