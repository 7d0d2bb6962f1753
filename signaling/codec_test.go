package signaling

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeDeserializeOffer(t *testing.T) {
	var key [32]byte
	key[0] = 0x42

	msg := &Message{
		Kind:               KindOffer,
		CallID:             "f3b1d2aa-7c44-4b8f-9d2e-1a2b3c4d5e6f",
		EphemeralPublicKey: key,
		VoiceAddress:       "abcdefghijklmnop.onion:9152",
	}

	data, err := Serialize(msg)
	require.NoError(t, err)

	decoded, err := Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestSerializeDeserializeReject(t *testing.T) {
	msg := &Message{
		Kind:   KindReject,
		CallID: "call-1",
		Reason: "declined by user",
	}

	data, err := Serialize(msg)
	require.NoError(t, err)

	decoded, err := Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, KindReject, decoded.Kind)
	assert.Equal(t, "call-1", decoded.CallID)
	assert.Equal(t, "declined by user", decoded.Reason)
}

func TestSerializeDeserializeBusy(t *testing.T) {
	msg := &Message{Kind: KindBusy, CallID: "call-2"}

	data, err := Serialize(msg)
	require.NoError(t, err)

	decoded, err := Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, KindBusy, decoded.Kind)
	assert.Equal(t, "call-2", decoded.CallID)
}

func TestSerializeValidation(t *testing.T) {
	var key [32]byte
	key[5] = 1

	tests := []struct {
		name    string
		msg     *Message
		wantErr error
	}{
		{"nil message", nil, nil},
		{"empty call id", &Message{Kind: KindBusy}, ErrCallIDInvalid},
		{"oversized call id", &Message{Kind: KindBusy, CallID: strings.Repeat("x", MaxCallIDLen+1)}, ErrCallIDInvalid},
		{"unknown kind", &Message{Kind: MessageKind(0xEE), CallID: "c"}, ErrUnknownKind},
		{"oversized address", &Message{Kind: KindOffer, CallID: "c", EphemeralPublicKey: key, VoiceAddress: strings.Repeat("a", MaxAddressLen+1)}, ErrFieldTooLong},
		{"oversized reason", &Message{Kind: KindReject, CallID: "c", Reason: strings.Repeat("r", MaxReasonLen+1)}, ErrFieldTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Serialize(tt.msg)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
			}
		})
	}
}

func TestDeserializeMalformed(t *testing.T) {
	valid, err := Serialize(&Message{
		Kind:         KindAnswer,
		CallID:       "call-3",
		VoiceAddress: "peer.onion:9152",
		EphemeralPublicKey: func() [32]byte {
			var k [32]byte
			k[1] = 7
			return k
		}(),
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty", nil, ErrMessageTooShort},
		{"kind only", []byte{byte(KindBusy)}, ErrMessageTooShort},
		{"unknown kind", []byte{0xEE, 1, 'c'}, ErrUnknownKind},
		{"zero id length", []byte{byte(KindBusy), 0, 0}, ErrCallIDInvalid},
		{"truncated call id", []byte{byte(KindBusy), 10, 'a', 'b'}, ErrMessageTooShort},
		{"truncated answer body", valid[:len(valid)-5], ErrMessageTooShort},
		{"truncated reject reason", append([]byte{byte(KindReject), 1, 'c'}, 0x00, 0x10), ErrMessageTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Deserialize(tt.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}
