package mailbox

import "context"

// IMAPAuthenticator implements certupload.Authenticator by attempting an
// IMAP login against address. A successful login authenticates the
// supplied credentials; the email address itself is used as the principal
// id, matching this deployment's single-account-per-login model.
type IMAPAuthenticator struct {
	Address string
}

// Authenticate dials address and attempts to log in as email/password. The
// connection is closed immediately afterwards; it exists only to validate
// the credentials.
func (a *IMAPAuthenticator) Authenticate(ctx context.Context, email, password string) (string, bool) {
	conn, err := dialIMAP(a.Address)
	if err != nil {
		logger.Warningf("authentication dial failed for %s: %s", email, err)
		return "", false
	}
	defer closeIMAP(conn)

	if err := loginIMAP(conn, email, password); err != nil {
		logger.Warningf("authentication login failed for %s: %s", email, err)
		return "", false
	}
	return email, true
}
