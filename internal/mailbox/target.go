package mailbox

import (
	"time"

	"github.com/mxk/go-imap/imap"
)

// Target writes delivered (encrypted) messages to an IMAP mailbox.
type Target struct {
	conn       *imap.Client
	curMailbox string
}

// NewTarget returns a new Target.
func NewTarget() *Target {
	return &Target{}
}

// Dial connects to address over TLS.
func (t *Target) Dial(address string) error {
	conn, err := dialIMAP(address)
	if err != nil {
		return err
	}
	t.conn = conn
	return nil
}

// Login authenticates with the server.
func (t *Target) Login(username, password string) error {
	return loginIMAP(t.conn, username, password)
}

// Close logs out and ends the connection.
func (t *Target) Close() error {
	return closeIMAP(t.conn)
}

// SelectMailbox blindly creates (ignoring a "mailbox already exists" error)
// and selects mailbox for subsequent Append calls.
func (t *Target) SelectMailbox(mailbox string) error {
	t.curMailbox = mailbox
	logger.Debugf("blindly creating mailbox '%s'", mailbox)
	_, err := imap.Wait(t.conn.Create(mailbox))
	logger.Debugf("mailbox creation ended with err=%s", err)

	logger.Debugf("selecting mailbox '%s'", mailbox)
	_, err = imap.Wait(t.conn.Select(mailbox, false /* readonly=false */))
	if err != nil {
		logger.Errorf("unable to select mailbox '%s': %s", mailbox, err)
	}
	return err
}

// Append stores msg in the currently selected mailbox with the given flags
// and internal date. The \Recent flag is stripped since it is
// server-assigned.
func (t *Target) Append(flags imap.FlagSet, idate *time.Time, msg imap.Literal) error {
	logger.Debugf("appending mail to mailbox '%s'", t.curMailbox)
	delete(flags, "\\Recent")
	_, err := imap.Wait(t.conn.Append(t.curMailbox, flags, idate, msg))
	if err != nil {
		logger.Errorf("failed to store message: %s", err)
	}
	return err
}
