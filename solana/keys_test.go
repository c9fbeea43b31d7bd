package solana

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadKey(t *testing.T) {
	ctx := context.Background()

	_, err := LoadKey(ctx, KeySource{})
	require.ErrorIs(t, err, ErrMissingCredential)

	// Project without secret id is not a source.
	_, err = LoadKey(ctx, KeySource{SecretProject: "p"})
	require.ErrorIs(t, err, ErrMissingCredential)

	key := testKey(t)

	got, err := LoadKey(ctx, KeySource{Base58: key.String()})
	require.NoError(t, err)
	require.Equal(t, key, got)

	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, raw, 0600))

	got, err = LoadKey(ctx, KeySource{KeygenFile: path})
	require.NoError(t, err)
	require.Equal(t, key, got)

	_, err = LoadKey(ctx, KeySource{KeygenFile: filepath.Join(t.TempDir(), "missing.json")})
	require.Error(t, err)
}

func TestLoadOrGenerateKey(t *testing.T) {
	key, err := LoadOrGenerateKey(context.Background(), KeySource{})
	require.NoError(t, err)
	require.Len(t, key, 64)
	require.NoError(t, key.Validate())
}
