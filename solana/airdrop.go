package solana

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/gagliardetto/solana-go"
)

// Airdrop requests lamports for the acting identity and waits until the
// transfer is confirmed. Test clusters only.
func (l *Launcher) Airdrop(ctx context.Context, lamports uint64) (solana.Signature, error) {
	if !l.config.TestNetwork {
		return solana.Signature{}, fmt.Errorf("airdrop is not available on %s", l.config.Cluster.Name)
	}

	var sig solana.Signature
	err := retry.Do(
		func() error {
			var err error
			sig, err = l.cluster.RequestAirdrop(ctx, l.key.PublicKey(), lamports)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("cannot request airdrop: %w", err)
	}

	_, err = AwaitConfirmation(ctx, l.cluster, sig, WaitOptions{
		Timeout:      l.config.StepTimeout,
		Poll:         true,
		PollInterval: l.config.PollInterval,
	})
	if err != nil {
		return sig, fmt.Errorf("airdrop %s: %w", sig, err)
	}
	l.log.Info().Stringer("tx", sig).Uint64("lamports", lamports).Msg("airdrop confirmed")

	return sig, nil
}
