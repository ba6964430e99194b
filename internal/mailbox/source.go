// Package mailbox implements the IMAP delivery pipeline: it walks a source
// mailbox, loads each message's owning principal's encryption parameters,
// runs them through the orchestrator, and appends the result to a target
// mailbox.
package mailbox

import (
	"crypto/tls"
	"time"

	"github.com/juju/loggo"
	"github.com/mxk/go-imap/imap"
)

var logger = loggo.GetLogger("mailbox")

// CustomHeader marks a message as already processed by this pipeline, so
// later search passes skip it and so a human operator can tell archived
// mail apart from never-delivered mail.
const CustomHeader = "X-Lemoncrypt-Version"

// imapDateFormat is RFC 3501's SEARCH date format.
const imapDateFormat = "_2-Jan-2006"

// day is used to convert a minimum-age configuration value into a
// time.Duration.
const day = 24 * time.Hour

// dialIMAP opens a TLS connection to an IMAP server. Shared by Source,
// Target and IMAPAuthenticator so the three don't each carry their own
// copy of the same three-line dial sequence.
func dialIMAP(address string) (*imap.Client, error) {
	logger.Debugf("connecting to %s", address)
	conn, err := imap.DialTLS(address, &tls.Config{})
	if err != nil {
		logger.Errorf("failed to connect: %s", err)
		return nil, err
	}
	return conn, nil
}

// loginIMAP authenticates an already-dialed connection.
func loginIMAP(conn *imap.Client, username, password string) error {
	logger.Debugf("attempting to login as %s", username)
	if _, err := imap.Wait(conn.Login(username, password)); err != nil {
		logger.Errorf("login failed: %s", err)
		return err
	}
	logger.Debugf("logged in")
	return nil
}

// closeIMAP logs out and ends the connection.
func closeIMAP(conn *imap.Client) error {
	logger.Debugf("logging out")
	_, err := conn.Logout(0)
	return err
}

// SourceCallback is invoked once per eligible message.
type SourceCallback func(flags imap.FlagSet, idate *time.Time, msg imap.Literal) error

// Source walks an IMAP mailbox, excluding messages already marked with
// CustomHeader and optionally younger than a configured minimum age.
type Source struct {
	conn              *imap.Client
	deletePlainCopies bool
	minAge            time.Duration
	deletionResults   []*imap.Command
}

// NewSource returns a new Source. minAgeInDays is the minimum message age
// (by SENTBEFORE/BEFORE) eligible for processing; deletePlainCopies marks
// the original plaintext message for deletion after a successful delivery.
func NewSource(deletePlainCopies bool, minAgeInDays time.Duration) *Source {
	return &Source{
		deletePlainCopies: deletePlainCopies,
		minAge:            minAgeInDays * day,
	}
}

// Dial connects to address over TLS.
func (s *Source) Dial(address string) error {
	conn, err := dialIMAP(address)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// Login authenticates with the server.
func (s *Source) Login(username, password string) error {
	return loginIMAP(s.conn, username, password)
}

// Close logs out and ends the connection.
func (s *Source) Close() error {
	return closeIMAP(s.conn)
}

// Iterate selects mailbox, searches for eligible messages and invokes
// callback for each one found.
func (s *Source) Iterate(mailbox string, callback SourceCallback) error {
	logger.Debugf("selecting mailbox '%s'", mailbox)
	if _, err := s.conn.Select(mailbox, false /* read-write */); err != nil {
		logger.Errorf("failed to select mailbox: %s", err)
		return err
	}

	searchFilter := buildSearchFilter(s.minAge, time.Now())
	logger.Debugf("searching for: %s", searchFilter)
	cmd, err := imap.Wait(s.conn.Search(searchFilter))
	if err != nil {
		logger.Errorf("search failed: %s", err)
		return err
	}

	logger.Debugf("found %d result sets", len(cmd.Data))
	for idx, rsp := range cmd.Data {
		results := rsp.SearchResults()
		logger.Debugf("result set #%d contains %d results", idx, len(results))
		if len(results) == 0 {
			continue
		}
		if err := s.fetchIDs(results, callback); err != nil {
			return err
		}
	}

	logger.Debugf("expunging mail marked for deletion")
	_, err = imap.Wait(s.conn.Expunge(nil))
	if err != nil {
		logger.Errorf("failed to expunge: %s", err)
	}
	return err
}

// buildSearchFilter constructs the IMAP SEARCH criteria excluding already
// processed and too-recent messages. now is passed in explicitly for
// testability.
func buildSearchFilter(minAge time.Duration, now time.Time) string {
	dateStr := now.Add(-minAge).Format(imapDateFormat)
	return "UNDELETED SEEN UNFLAGGED (NOT HEADER " + CustomHeader + " \"\") " +
		"(OR SENTBEFORE " + dateStr + " BEFORE " + dateStr + ")"
}

func (s *Source) fetchIDs(ids []uint32, callback SourceCallback) error {
	set, _ := imap.NewSeqSet("")
	set.AddNum(ids...)
	cmd, err := s.conn.Fetch(set, "RFC822", "UID", "FLAGS", "INTERNALDATE")
	if err != nil {
		logger.Errorf("FETCH failed: %s", err)
		return err
	}
	for cmd.InProgress() {
		s.conn.Recv(-1)
		for _, rsp := range cmd.Data {
			_ = s.handleMessage(rsp, callback)
		}
		cmd.Data = nil
	}

	if rsp, err := cmd.Result(imap.OK); err != nil {
		if err == imap.ErrAborted {
			logger.Errorf("FETCH command aborted")
		} else {
			logger.Errorf("FETCH error: %s", rsp.Info)
		}
		return err
	}
	logger.Debugf("FETCH completed without errors")

	for _, cmd := range s.deletionResults {
		if rsp, err := cmd.Result(imap.OK); err != nil {
			logger.Warningf("deletion failure: %s, info=%s", err, rsp.Info)
		}
	}
	return nil
}

func (s *Source) handleMessage(rsp *imap.Response, callback SourceCallback) error {
	msgInfo := rsp.MessageInfo()
	if err := s.invokeCallback(msgInfo, callback); err != nil {
		return err
	}
	uid := imap.AsNumber(msgInfo.Attrs["UID"])
	return s.deleteMessage(uid)
}

func (s *Source) deleteMessage(uid uint32) error {
	if !s.deletePlainCopies {
		return nil
	}
	logger.Debugf("marking message uid=%d for deletion", uid)
	set, _ := imap.NewSeqSet("")
	set.AddNum(uid)
	cmd, err := s.conn.UIDStore(set, "+FLAGS", "(\\Deleted)")
	if err != nil {
		logger.Errorf("failed to mark uid=%d for deletion: %s", uid, err)
		return err
	}
	s.deletionResults = append(s.deletionResults, cmd)
	return nil
}

func (s *Source) invokeCallback(msgInfo *imap.MessageInfo, callback SourceCallback) error {
	logger.Debugf("handling mail uid=%d", msgInfo.Attrs["UID"])
	flags := imap.AsFlagSet(msgInfo.Attrs["FLAGS"])
	idate := imap.AsDateTime(msgInfo.Attrs["INTERNALDATE"])
	mailBytes := imap.AsBytes(msgInfo.Attrs["RFC822"])
	mailLiteral := imap.NewLiteral(mailBytes)
	err := callback(flags, &idate, mailLiteral)
	if err == nil {
		logger.Debugf("message transformation successful")
	} else {
		logger.Warningf("message transformation failed: %s", err)
	}
	return err
}
