package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGenerateKeyPairUnique verifies generated pairs are random and
// never repeated across call attempts.
func TestGenerateKeyPairUnique(t *testing.T) {
	first, err := GenerateKeyPair()
	require.NoError(t, err)

	second, err := GenerateKeyPair()
	require.NoError(t, err)

	assert.NotEqual(t, first.Public, second.Public)
	assert.NotEqual(t, first.Private, second.Private)
	assert.False(t, isZeroKey(first.Public))
	assert.False(t, isZeroKey(first.Private))
}

// TestFromSecretKey verifies the public key derived from a stored
// private key matches the originally generated pair.
func TestFromSecretKey(t *testing.T) {
	original, err := GenerateKeyPair()
	require.NoError(t, err)

	restored, err := FromSecretKey(original.Private)
	require.NoError(t, err)

	assert.Equal(t, original.Public, restored.Public)
}

func TestFromSecretKeyRejectsZero(t *testing.T) {
	_, err := FromSecretKey([32]byte{})
	assert.Error(t, err)
}

func TestWipeKeyPair(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	require.NoError(t, WipeKeyPair(kp))
	assert.Equal(t, [32]byte{}, kp.Private, "private key must be zeroed")

	assert.Error(t, WipeKeyPair(nil))
}
