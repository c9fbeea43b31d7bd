package solana

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"gitlab.com/scpcorp/candy-launcher/common"
)

type Status struct {
	// Known is false while the cluster has no record of the signature.
	Known bool
	Mint  common.MintStatus
	Slot  uint64
	Err   error // Set for a failed transaction.
}

// TxStatus reports the current outcome of a submitted transaction.
func (l *Launcher) TxStatus(ctx context.Context, sig solana.Signature) (Status, error) {
	res, err := l.cluster.SignatureStatus(ctx, sig)
	if err != nil {
		return Status{}, fmt.Errorf("cannot get signature status: %w", err)
	}
	if res == nil {
		return Status{Mint: common.MintPending}, nil
	}
	if res.Err != nil {
		return Status{
			Known: true,
			Mint:  common.MintFailed,
			Slot:  res.Slot,
			Err:   &ConfirmationError{Signature: sig, Slot: res.Slot, Value: res.Err},
		}, nil
	}
	if !isConfirmed(res) {
		return Status{Known: true, Mint: common.MintPending, Slot: res.Slot}, nil
	}
	return Status{Known: true, Mint: common.MintConfirmed, Slot: res.Slot}, nil
}
