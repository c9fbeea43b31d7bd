package solana

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	smpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/gagliardetto/solana-go"
)

// KeySource tells where the signing key of a run comes from. The first
// non-empty source wins.
type KeySource struct {
	// Path to a solana-keygen file.
	KeygenFile string

	// Base58 encoded private key.
	Base58 string

	// GCP Secret Manager secret holding a solana-keygen JSON array.
	SecretProject string
	SecretID      string
}

func (s KeySource) empty() bool {
	return s.KeygenFile == "" && s.Base58 == "" && (s.SecretProject == "" || s.SecretID == "")
}

// LoadKey loads the signing key. It returns ErrMissingCredential if no source
// is configured.
func LoadKey(ctx context.Context, src KeySource) (solana.PrivateKey, error) {
	switch {
	case src.empty():
		return nil, ErrMissingCredential
	case src.KeygenFile != "":
		key, err := solana.PrivateKeyFromSolanaKeygenFile(src.KeygenFile)
		if err != nil {
			return nil, fmt.Errorf("cannot create private key: %w", err)
		}
		return key, nil
	case src.Base58 != "":
		key, err := solana.PrivateKeyFromBase58(src.Base58)
		if err != nil {
			return nil, fmt.Errorf("cannot decode private key: %w", err)
		}
		return key, nil
	default:
		return loadSecretKey(ctx, src.SecretProject, src.SecretID)
	}
}

// LoadOrGenerateKey is LoadKey that creates a fresh key when no source is
// configured. Used by throwaway test network runs.
func LoadOrGenerateKey(ctx context.Context, src KeySource) (solana.PrivateKey, error) {
	if src.empty() {
		return solana.NewRandomPrivateKey()
	}
	return LoadKey(ctx, src)
}

func loadSecretKey(ctx context.Context, project, secretID string) (solana.PrivateKey, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("secretmanager.NewClient: %w", err)
	}
	defer client.Close()

	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", project, secretID)
	res, err := client.AccessSecretVersion(ctx, &smpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return nil, fmt.Errorf("access secret version %s: %w", name, err)
	}

	key, err := solana.PrivateKeyFromSolanaKeygenFileBytes(res.Payload.Data)
	if err != nil {
		return nil, fmt.Errorf("secret %s: %w", name, err)
	}
	return key, nil
}
