package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeBool(t *testing.T) {
	for _, in := range []string{"yes", " Y ", "TRUE", "1", "ja"} {
		require.True(t, NormalizeBool(in), in)
	}
	for _, in := range []string{"", "no", "nope", "0"} {
		require.False(t, NormalizeBool(in), in)
	}
}

func TestVerifyHMAC(t *testing.T) {
	sig := HMACSHA256Hex("secret", "reg-1")
	require.True(t, VerifyHMAC("secret", "reg-1", sig))
	require.False(t, VerifyHMAC("secret", "reg-2", sig))
	require.False(t, VerifyHMAC("other", "reg-1", sig))
	require.False(t, VerifyHMAC("secret", "reg-1", ""))
}

func TestSameEmail(t *testing.T) {
	require.True(t, SameEmail("Anna@Example.org", " anna@example.org"))
	require.False(t, SameEmail("anna@example.org", "ben@example.org"))
	require.False(t, SameEmail("", ""))
}
