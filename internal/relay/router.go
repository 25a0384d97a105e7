package relay

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"cachet/internal/domain"
)

// EnvelopeListener observes routing outcomes. The server wires the history
// recorder through this; the router itself never persists anything.
type EnvelopeListener interface {
	EnvelopeRelayed(env domain.Envelope, outcome domain.RelayOutcome)
}

// Router validates relay requests and blind-forwards them to the addressed
// identity's live connection. It never decrypts: ciphertext and wrapped key
// pass through as opaque bytes.
type Router struct {
	registry *Registry
	listener EnvelopeListener
	now      func() time.Time
	log      logrus.FieldLogger
}

// NewRouter returns a router forwarding through registry. listener may be
// nil.
func NewRouter(registry *Registry, listener EnvelopeListener, log logrus.FieldLogger) *Router {
	return &Router{
		registry: registry,
		listener: listener,
		now:      time.Now,
		log:      log,
	}
}

// Relay validates req, attributes it to the authenticated sender, and
// forwards it. Sender attribution is the relay's trust boundary: any
// client-supplied from value never reaches the recipient.
//
// Relay returns after handoff to the recipient's outbound queue; it does
// not wait for the recipient. RecipientOffline is a normal outcome, not an
// error, and leaves no state behind.
func (r *Router) Relay(sender domain.Identity, req domain.SendRequest) (domain.RelayOutcome, error) {
	if err := validate(req); err != nil {
		r.log.WithFields(logrus.Fields{
			"from": sender.ID,
			"to":   req.To,
		}).Warn("dropping malformed relay request")
		return 0, err
	}

	env := domain.Envelope{
		From:       sender.ID,
		To:         req.To,
		Ciphertext: req.Ciphertext,
		Algorithm:  req.Algorithm,
		Metadata:   req.Metadata,
		Timestamp:  r.now().UTC(),
	}

	outcome := domain.RecipientOffline
	if h, ok := r.registry.Lookup(req.To); ok && h.Deliver(env.Deliver()) {
		outcome = domain.Delivered
	}

	r.log.WithFields(logrus.Fields{
		"from":    env.From,
		"to":      env.To,
		"outcome": outcome.String(),
		"size":    len(env.Ciphertext),
	}).Debug("relayed envelope")

	if r.listener != nil {
		r.listener.EnvelopeRelayed(env, outcome)
	}
	return outcome, nil
}

func validate(req domain.SendRequest) error {
	switch {
	case req.To == "":
		return fmt.Errorf("%w: missing to", domain.ErrValidation)
	case len(req.Ciphertext) == 0:
		return fmt.Errorf("%w: missing ciphertext", domain.ErrValidation)
	case req.Algorithm == "":
		return fmt.Errorf("%w: missing algorithm", domain.ErrValidation)
	case len(req.Metadata.IV) == 0:
		return fmt.Errorf("%w: missing iv", domain.ErrValidation)
	case len(req.Metadata.WrappedKey) == 0:
		return fmt.Errorf("%w: missing wrapped key", domain.ErrValidation)
	}
	return nil
}
