package domain

// FrameType discriminates messages on the realtime channel.
type FrameType string

const (
	// FrameSend is a client-to-server relay request.
	FrameSend FrameType = "send"
	// FrameMessage is a server-to-client envelope delivery.
	FrameMessage FrameType = "message"
	// FrameReceipt reports the outcome of a send back to its sender.
	FrameReceipt FrameType = "receipt"
	// FrameError reports a dropped, malformed request.
	FrameError FrameType = "error"
)

// Frame is the single JSON unit exchanged on an authenticated realtime
// connection. Exactly one payload field is set, matching Type.
type Frame struct {
	Type    FrameType     `json:"type"`
	Send    *SendRequest  `json:"send,omitempty"`
	Message *DeliverEvent `json:"message,omitempty"`
	Receipt *Receipt      `json:"receipt,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// Receipt tells a sender what happened to one relay request.
type Receipt struct {
	To      UserID `json:"to"`
	Outcome string `json:"outcome"`
}
