package domain

import "time"

// EnvelopeMetadata carries the material a recipient needs to unwrap the
// per-message key: the symmetric IV and the key wrapped under the
// recipient's public key.
type EnvelopeMetadata struct {
	IV         []byte `json:"iv"`
	WrappedKey []byte `json:"wrapped_key"`
}

// SendRequest is what a client posts over its authenticated connection.
// Any client-supplied From is ignored; the relay stamps the authenticated
// sender.
type SendRequest struct {
	To         UserID           `json:"to"`
	Ciphertext []byte           `json:"ciphertext"`
	Algorithm  string           `json:"algorithm"`
	Metadata   EnvelopeMetadata `json:"metadata"`
}

// DeliverEvent is what a recipient's connection receives. From and
// Timestamp are server-assigned.
type DeliverEvent struct {
	From       UserID           `json:"from"`
	Ciphertext []byte           `json:"ciphertext"`
	Algorithm  string           `json:"algorithm"`
	Metadata   EnvelopeMetadata `json:"metadata"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Envelope is the full routed unit: a validated SendRequest with the
// sender attribution and timestamp the relay assigned. The relay treats
// Ciphertext and Metadata.WrappedKey as opaque bytes.
type Envelope struct {
	From       UserID           `json:"from"`
	To         UserID           `json:"to"`
	Ciphertext []byte           `json:"ciphertext"`
	Algorithm  string           `json:"algorithm"`
	Metadata   EnvelopeMetadata `json:"metadata"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Deliver returns the recipient-facing view of the envelope.
func (e Envelope) Deliver() DeliverEvent {
	return DeliverEvent{
		From:       e.From,
		Ciphertext: e.Ciphertext,
		Algorithm:  e.Algorithm,
		Metadata:   e.Metadata,
		Timestamp:  e.Timestamp,
	}
}

// RelayOutcome reports what happened to a relayed envelope.
type RelayOutcome int

const (
	// Delivered means the envelope was handed to the recipient's live
	// connection queue.
	Delivered RelayOutcome = iota
	// RecipientOffline means no live connection exists for the recipient.
	// This is a normal status, not an error.
	RecipientOffline
)

// String names the outcome for logs and client display.
func (o RelayOutcome) String() string {
	if o == Delivered {
		return "delivered"
	}
	return "recipient_offline"
}
