package signaling

// MessageKind identifies the type of a signaling message.
type MessageKind byte

const (
	// KindOffer initiates a call. Carries the caller's ephemeral public
	// key and voice transport address.
	KindOffer MessageKind = iota + 1
	// KindAnswer accepts a call. Carries the callee's ephemeral public
	// key and voice transport address.
	KindAnswer
	// KindReject declines or aborts a call, with a reason.
	KindReject
	// KindBusy reports that the callee already has an active call.
	KindBusy
)

// String returns a human-readable name for the message kind.
func (k MessageKind) String() string {
	switch k {
	case KindOffer:
		return "OFFER"
	case KindAnswer:
		return "ANSWER"
	case KindReject:
		return "REJECT"
	case KindBusy:
		return "BUSY"
	default:
		return "UNKNOWN"
	}
}

// Message is a parsed signaling message.
//
// CallID is the caller-generated opaque token identifying the call
// attempt. EphemeralPublicKey and VoiceAddress are only meaningful for
// OFFER and ANSWER; Reason only for REJECT.
type Message struct {
	Kind               MessageKind
	CallID             string
	EphemeralPublicKey [32]byte
	VoiceAddress       string
	Reason             string
}
