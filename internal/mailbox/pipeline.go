package mailbox

import (
	"context"
	"errors"
	"time"

	"github.com/mxk/go-imap/imap"

	"github.com/hoffie/cryptomail/internal/cryptocore"
	"github.com/hoffie/cryptomail/internal/metrics"
	"github.com/hoffie/cryptomail/internal/paramstore"
)

// errNoParams signals that the owning principal has no encryption
// parameters configured. It is handled the same way as
// cryptocore.ErrAlreadyEncrypted: the message is appended to target
// unchanged rather than dropped.
var errNoParams = errors.New("no encryption parameters configured")

// Pipeline drives one account's worth of folder-to-folder delivery: for
// every configured source folder, iterate its eligible messages, encrypt
// each one against the account's stored parameters, and append the result
// to the corresponding target folder.
type Pipeline struct {
	source       *Source
	target       *Target
	orchestrator *cryptocore.Orchestrator
	store        paramstore.Store
	principalID  string
	metrics      *metrics.Collector
}

// NewPipeline returns a Pipeline for the given account (identified by
// principalID, the IMAP username) wired to source/target connections, a
// shared orchestrator, and the parameter store.
func NewPipeline(source *Source, target *Target, orchestrator *cryptocore.Orchestrator, store paramstore.Store, principalID string, metrics *metrics.Collector) *Pipeline {
	return &Pipeline{
		source:       source,
		target:       target,
		orchestrator: orchestrator,
		store:        store,
		principalID:  principalID,
		metrics:      metrics,
	}
}

// Run processes every configured folder. sourceToTarget maps a source
// folder name to its target folder name; an empty target defaults to the
// same name.
func (p *Pipeline) Run(ctx context.Context, sourceToTarget map[string]string) error {
	for sourceFolder, targetFolder := range sourceToTarget {
		if targetFolder == "" {
			targetFolder = sourceFolder
		}
		logger.Infof("working on folder=%s (target=%s)", sourceFolder, targetFolder)
		if err := p.target.SelectMailbox(targetFolder); err != nil {
			logger.Errorf("failed to select mailbox %s: %s", targetFolder, err)
			return err
		}
		err := p.source.Iterate(sourceFolder, func(flags imap.FlagSet, idate *time.Time, orig imap.Literal) error {
			return p.deliverMessage(ctx, flags, idate, orig)
		})
		if err != nil {
			logger.Errorf("folder iteration failed for %s: %s", sourceFolder, err)
			return err
		}
	}
	return nil
}

// deliverMessage loads the account's encryption parameters, encrypts the
// message, and appends it to the target mailbox. A message for a principal
// with no stored parameters, or one that is already encrypted, is appended
// unchanged. Every message appended to target is tagged with CustomHeader
// so later search passes never re-pick it up, regardless of which of the
// three paths produced it.
func (p *Pipeline) deliverMessage(ctx context.Context, flags imap.FlagSet, idate *time.Time, orig imap.Literal) error {
	record := p.metrics.NewRecord()
	record.OrigSize = orig.Info().Len

	buf := NewMessageBuffer()
	if _, err := orig.WriteTo(buf); err != nil {
		return err
	}
	raw := buf.Bytes()

	passThrough := false
	envelope, method, err := p.raw2envelope(ctx, raw)
	switch {
	case errors.Is(err, cryptocore.ErrAlreadyEncrypted):
		logger.Debugf("message already encrypted, passing through unchanged")
		passThrough = true
	case errors.Is(err, errNoParams):
		logger.Debugf("no encryption parameters for %s, passing through unchanged", p.principalID)
		passThrough = true
	case err != nil:
		record.Success = false
		_ = record.Commit()
		return err
	}
	record.Method = method.String()

	var outLiteral imap.Literal
	if passThrough {
		outLiteral = imap.NewLiteral(append([]byte(CustomHeader+": 1\r\n"), raw...))
	} else {
		outLiteral = imap.NewLiteral(append([]byte(CustomHeader+": 1\r\n"), envelope...))
	}

	record.ResultSize = outLiteral.Info().Len
	record.Success = true
	if err := record.Commit(); err != nil {
		logger.Warningf("failed to write metric record: %s", err)
	}

	return p.target.Append(flags, idate, outLiteral)
}

// raw2envelope encrypts raw against the principal's stored parameters and
// returns the resulting envelope alongside the method used, so the caller
// can record it in its delivery metrics.
func (p *Pipeline) raw2envelope(ctx context.Context, raw []byte) ([]byte, cryptocore.EncryptionMethod, error) {
	msg, err := cryptocore.ParseMessage(raw)
	if err != nil {
		return nil, 0, err
	}

	value, ok, err := p.store.Get(ctx, p.principalID)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, errNoParams
	}
	params, err := cryptocore.Deserialize(value)
	if err != nil {
		return nil, 0, err
	}

	envelope, err := p.orchestrator.Encrypt(ctx, msg, params)
	return envelope, params.Method, err
}
