package common

import (
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"
)

func TestSolanaAddressEncoding(t *testing.T) {
	f := fuzz.New()
	for i := 0; i < 10; i++ {
		var addr SolanaAddress
		f.Fuzz(&addr)
		gotAddr, err := SolanaAddressFromString(addr.String())
		require.NoError(t, err)
		require.Equal(t, addr, gotAddr)
	}
}

func TestStatusStrings(t *testing.T) {
	for s := RunRunning; s < RunStatusCount; s++ {
		require.NotContains(t, s.String(), "RunStatus(")
	}
	for s := MintPending; s < MintStatusCount; s++ {
		require.NotContains(t, s.String(), "MintStatus(")
	}
}
