package signaling

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Wire format for signaling messages, inside the sealed envelope:
//
//	[KIND(1)][CALLID_LEN(1)][CALLID]
//	OFFER/ANSWER: [EPHEMERAL_KEY(32)][ADDR_LEN(2)][ADDR]
//	REJECT:       [REASON_LEN(2)][REASON]
//	BUSY:         (no further fields)
//
// All multi-byte integers are big-endian.

const (
	// MaxCallIDLen bounds the call ID field. UUID strings are 36 bytes.
	MaxCallIDLen = 64
	// MaxAddressLen bounds the voice transport address field. Onion v3
	// addresses are 62 bytes; leave headroom for ports and schemes.
	MaxAddressLen = 255
	// MaxReasonLen bounds the REJECT reason field.
	MaxReasonLen = 255
)

// Serialize converts a Message to bytes for transmission.
func Serialize(msg *Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("message is nil")
	}
	if len(msg.CallID) == 0 || len(msg.CallID) > MaxCallIDLen {
		return nil, fmt.Errorf("%w: length %d", ErrCallIDInvalid, len(msg.CallID))
	}

	data := make([]byte, 0, 2+len(msg.CallID)+34+len(msg.VoiceAddress)+len(msg.Reason))
	data = append(data, byte(msg.Kind))
	data = append(data, byte(len(msg.CallID)))
	data = append(data, msg.CallID...)

	switch msg.Kind {
	case KindOffer, KindAnswer:
		if len(msg.VoiceAddress) > MaxAddressLen {
			return nil, fmt.Errorf("%w: address length %d", ErrFieldTooLong, len(msg.VoiceAddress))
		}
		data = append(data, msg.EphemeralPublicKey[:]...)
		data = binary.BigEndian.AppendUint16(data, uint16(len(msg.VoiceAddress)))
		data = append(data, msg.VoiceAddress...)

	case KindReject:
		if len(msg.Reason) > MaxReasonLen {
			return nil, fmt.Errorf("%w: reason length %d", ErrFieldTooLong, len(msg.Reason))
		}
		data = binary.BigEndian.AppendUint16(data, uint16(len(msg.Reason)))
		data = append(data, msg.Reason...)

	case KindBusy:
		// No further fields.

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, msg.Kind)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Serialize",
		"kind":      msg.Kind.String(),
		"call_id":   msg.CallID,
		"data_size": len(data),
	}).Debug("Signaling message serialized")

	return data, nil
}

// Deserialize converts bytes to a Message.
//
// Decode errors are typed so the receive path can classify and drop
// malformed input without crashing.
func Deserialize(data []byte) (*Message, error) {
	if len(data) < 3 {
		return nil, ErrMessageTooShort
	}

	kind := MessageKind(data[0])
	switch kind {
	case KindOffer, KindAnswer, KindReject, KindBusy:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, data[0])
	}

	idLen := int(data[1])
	if idLen == 0 || idLen > MaxCallIDLen {
		return nil, fmt.Errorf("%w: length %d", ErrCallIDInvalid, idLen)
	}
	if len(data) < 2+idLen {
		return nil, ErrMessageTooShort
	}

	msg := &Message{
		Kind:   kind,
		CallID: string(data[2 : 2+idLen]),
	}
	rest := data[2+idLen:]

	switch kind {
	case KindOffer, KindAnswer:
		if len(rest) < 34 {
			return nil, ErrMessageTooShort
		}
		copy(msg.EphemeralPublicKey[:], rest[:32])
		addrLen := int(binary.BigEndian.Uint16(rest[32:34]))
		if len(rest) < 34+addrLen {
			return nil, ErrMessageTooShort
		}
		msg.VoiceAddress = string(rest[34 : 34+addrLen])

	case KindReject:
		if len(rest) < 2 {
			return nil, ErrMessageTooShort
		}
		reasonLen := int(binary.BigEndian.Uint16(rest[:2]))
		if len(rest) < 2+reasonLen {
			return nil, ErrMessageTooShort
		}
		msg.Reason = string(rest[2 : 2+reasonLen])

	case KindBusy:
		// No further fields.
	}

	return msg, nil
}
