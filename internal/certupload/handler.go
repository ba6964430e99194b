// Package certupload implements the HTTP certificate upload form: an
// account holder submits their email, password, desired encryption
// method/strength, and a certificate/key bundle; on success the derived
// EncryptionParams are self-tested and persisted.
package certupload

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/juju/loggo"

	"github.com/hoffie/cryptomail/internal/cryptocore"
	"github.com/hoffie/cryptomail/internal/paramstore"
)

var logger = loggo.GetLogger("certupload")

// selfTestPlaintext is the canonical message every new parameter set is
// test-encrypted against before being persisted.
const selfTestPlaintext = "Subject: test\r\ntest\r\n"

const maxUploadSizeBytes = 1 << 20 // 1 MiB; certificate bundles are small.

// Authenticator validates end-user credentials and returns the principal id
// (the IMAP account's username) used to key the parameter store. It is an
// external collaborator: directory/authentication lookup is out of scope
// for this module.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (principalID string, ok bool)
}

// Handler implements the upload form endpoint.
type Handler struct {
	auth  Authenticator
	store paramstore.Store
}

// NewHandler returns a Handler backed by auth and store.
func NewHandler(auth Authenticator, store paramstore.Store) *Handler {
	return &Handler{auth: auth, store: store}
}

var encryptionChoices = map[string]struct {
	method cryptocore.EncryptionMethod
	algo   cryptocore.Algorithm
}{
	"pgp-128":   {cryptocore.MethodPGP, cryptocore.Aes128},
	"pgp-256":   {cryptocore.MethodPGP, cryptocore.Aes256},
	"smime-128": {cryptocore.MethodSMIME, cryptocore.Aes128},
	"smime-256": {cryptocore.MethodSMIME, cryptocore.Aes256},
}

// ServeHTTP implements http.Handler: GET serves nothing (the static form is
// expected to be served separately), POST processes a submission.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.handleSubmit(w, r)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSizeBytes)
	if err := r.ParseMultipartForm(maxUploadSizeBytes); err != nil {
		http.Error(w, "form too large or invalid", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	email := r.FormValue("email")
	password := r.FormValue("password")
	encryption := r.FormValue("encryption")
	if email == "" || password == "" || encryption == "" {
		http.Error(w, "email, password and encryption are required", http.StatusBadRequest)
		return
	}

	principalID, ok := h.auth.Authenticate(r.Context(), email, password)
	if !ok {
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	if encryption == "disable" {
		b := h.store.NewBatch()
		b.Clear(principalID)
		if err := b.Commit(r.Context()); err != nil {
			err = cryptocore.NewPersistenceFailureError("failed to clear encryption params", err)
			logger.Errorf("%s: %s", principalID, err)
			http.Error(w, "failed to disable encryption", http.StatusInternalServerError)
			return
		}
		fmt.Fprintln(w, "encryption disabled")
		return
	}

	choice, ok := encryptionChoices[encryption]
	if !ok {
		http.Error(w, "unknown encryption selection", http.StatusBadRequest)
		return
	}

	certBytes, err := readCertificateField(r)
	if err != nil {
		http.Error(w, "missing or unreadable certificate upload", http.StatusBadRequest)
		return
	}

	method, certs, err := cryptocore.ParseCertificateBundle(certBytes)
	if err != nil {
		logger.Warningf("certificate parsing failed for %s: %s", principalID, err)
		http.Error(w, fmt.Sprintf("invalid certificate bundle: %s", err), http.StatusBadRequest)
		return
	}
	if method != choice.method {
		err := cryptocore.NewMethodMismatchError(fmt.Sprintf("selected %s but bundle contains %s certificates", encryption, method))
		logger.Warningf("%s: %s", principalID, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	params := &cryptocore.EncryptionParams{Method: choice.method, Algo: choice.algo, Certs: certs}
	if err := h.selfTest(r.Context(), params); err != nil {
		logger.Warningf("self-test failed for %s: %s", principalID, err)
		http.Error(w, fmt.Sprintf("self-test encryption failed: %s", err), http.StatusBadRequest)
		return
	}

	envelope, err := cryptocore.Serialize(params)
	if err != nil {
		logger.Errorf("failed to serialize params for %s: %s", principalID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	b := h.store.NewBatch()
	b.Put(principalID, envelope)
	if err := b.Commit(r.Context()); err != nil {
		err = cryptocore.NewPersistenceFailureError("failed to persist encryption params", err)
		logger.Errorf("%s: %s", principalID, err)
		http.Error(w, "failed to store encryption settings", http.StatusInternalServerError)
		return
	}

	fmt.Fprintln(w, "encryption settings updated")
}

// selfTest runs a one-shot encryption of the canonical plaintext against
// params, never touching persistence. A failure here is authoritative:
// the caller must not persist params whose self-test failed, even though
// the certificate bundle itself parsed successfully.
func (h *Handler) selfTest(ctx context.Context, params *cryptocore.EncryptionParams) error {
	msg, err := cryptocore.ParseMessage([]byte(selfTestPlaintext))
	if err != nil {
		return err
	}
	o := cryptocore.NewOrchestrator(1)
	_, err = o.Encrypt(ctx, msg, params)
	return err
}

func readCertificateField(r *http.Request) ([]byte, error) {
	file, _, err := r.FormFile("certificate")
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}
