package cryptocore

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// defaultWorkers bounds how many CPU-heavy crypto operations (PGP
// encryption/armoring, AES-CBC, RSA key wrapping, DER encoding) run at
// once when no explicit pool size is configured.
const defaultWorkers = 4

// Orchestrator dispatches Encrypt calls to the PGP or S/MIME envelope
// builder, bounding concurrent CPU-heavy crypto work with a weighted
// semaphore so a burst of deliveries can't starve the rest of the process.
type Orchestrator struct {
	sem *semaphore.Weighted
}

// NewOrchestrator returns an Orchestrator whose crypto core runs at most
// workers operations concurrently. workers <= 0 falls back to
// defaultWorkers.
func NewOrchestrator(workers int) *Orchestrator {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Orchestrator{sem: semaphore.NewWeighted(int64(workers))}
}

// Encrypt runs the full pipeline: refuse already-encrypted input, split the
// message, and dispatch to the configured method's envelope builder. The
// semaphore acquire is the only step that honors ctx cancellation; once the
// crypto core starts, it runs to completion.
func (o *Orchestrator) Encrypt(ctx context.Context, msg ParsedMessage, params *EncryptionParams) ([]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if IsEncrypted(msg) {
		return nil, ErrAlreadyEncrypted
	}

	outer, inner, err := Split(msg)
	if err != nil {
		return nil, err
	}

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer o.sem.Release(1)

	switch params.Method {
	case MethodPGP:
		return EncryptPGP(outer, inner, params.Certs, params.Algo)
	case MethodSMIME:
		return EncryptSMIME(outer, inner, params.Certs, params.Algo)
	default:
		return nil, newError(KindInvalidParams, "unknown encryption method")
	}
}
