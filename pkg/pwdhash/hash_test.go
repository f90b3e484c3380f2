package pwdhash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashRoundTrip(t *testing.T) {
	hash := HashPassword("hunter22")
	require.True(t, VerifyHash("hunter22", hash))
	require.False(t, VerifyHash("hunter23", hash))
	require.False(t, VerifyHash("", hash))
}

func TestHashIsSalted(t *testing.T) {
	h1 := HashPasswordBase64("hunter22")
	h2 := HashPasswordBase64("hunter22")
	require.NotEqual(t, h1, h2)
	require.True(t, VerifyHashBase64("hunter22", h1))
	require.True(t, VerifyHashBase64("hunter22", h2))
}

func TestVerifyGarbageHash(t *testing.T) {
	require.False(t, VerifyHashBase64("hunter22", ""))
	require.False(t, VerifyHashBase64("hunter22", "!!!not base64!!!"))
}

func TestHashIdentifier(t *testing.T) {
	a := HashIdentifier("10.0.0.1|abcd1234|admin")
	b := HashIdentifier("10.0.0.1|abcd1234|admin")
	c := HashIdentifier("10.0.0.2|abcd1234|admin")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Len(t, a, 64)

	require.Equal(t, a[:8], HashIdentifierShort("10.0.0.1|abcd1234|admin", 8))
}
