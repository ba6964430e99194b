package mailbox

import "bytes"

// MessageBuffer accumulates a message's bytes as they are streamed off an
// IMAP literal (imap.Literal.WriteTo writes to an io.Writer, it does not
// hand back a byte slice directly), so the fully materialized message can
// be handed to cryptocore.ParseMessage afterwards.
//
// This plays the same role the teacher's HeaderBuffer played — adapting a
// push-style writer into something the rest of the pipeline can parse —
// but is simpler because header/body partitioning itself now lives in
// cryptocore.Split, not here.
type MessageBuffer struct {
	buf bytes.Buffer
}

// NewMessageBuffer returns an empty MessageBuffer.
func NewMessageBuffer() *MessageBuffer {
	return &MessageBuffer{}
}

// Write implements io.Writer.
func (b *MessageBuffer) Write(data []byte) (int, error) {
	return b.buf.Write(data)
}

// Bytes returns the accumulated message bytes.
func (b *MessageBuffer) Bytes() []byte {
	return b.buf.Bytes()
}
