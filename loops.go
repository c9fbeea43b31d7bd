package launcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"gitlab.com/scpcorp/candy-launcher/common"
)

func (s *Server) runInALoop(ctx context.Context, name string, interval time.Duration, callback func(ctx context.Context) error) {
	s.stopWg.Add(1)
	ticker := time.NewTicker(interval)

	go func() {
		defer func() {
			ticker.Stop()
			s.stopWg.Done()
		}()
		for {
			select {
			case <-ctx.Done():
				s.log.Info().Str("loop", name).Msg("loop done by context")
				return
			case <-ticker.C:
				if err := callback(ctx); err != nil {
					s.log.Error().Err(err).Str("loop", name).Msg("callback failed")
				}
			}
		}
	}()
}

// processPendingMints resolves mints whose outcome was not known when the
// launch ended.
func (s *Server) processPendingMints(ctx context.Context) error {
	mints, err := s.storage.PendingMints(ctx, s.settings.MintCheckBatch)
	if err != nil {
		return fmt.Errorf("failed to fetch pending mints: %w", err)
	}
	for _, m := range mints {
		o, err := s.mintOutcome(ctx, m)
		if err != nil {
			return err
		}
		if o.status == common.MintPending {
			continue
		}
		if err := s.storage.SetMintStatus(ctx, m.TxID, o.status, o.slot); err != nil {
			return fmt.Errorf("failed to set mint status: %w", err)
		}
		s.log.Info().Str("tx", string(m.TxID)).Stringer("status", o.status).Uint64("slot", o.slot).Msg("mint resolved")
		if err := s.finishAfterMint(ctx, m.RunID, o.status, o.cause); err != nil {
			return err
		}
	}
	return nil
}

type outcome struct {
	status common.MintStatus
	slot   uint64
	cause  error
}

func (s *Server) mintOutcome(ctx context.Context, m common.MintRecord) (outcome, error) {
	sig, err := solana.SignatureFromBase58(string(m.TxID))
	if err != nil {
		return outcome{status: common.MintFailed, cause: fmt.Errorf("bad mint signature: %w", err)}, nil
	}
	st, err := s.chain.TxStatus(ctx, sig)
	if err != nil {
		return outcome{}, fmt.Errorf("failed to get status of %s: %w", m.TxID, err)
	}
	if age := s.now().Sub(m.CheckedAt); !st.Known && age > s.settings.MintDecayTime {
		s.log.Warn().Str("tx", string(m.TxID)).Dur("age", age).Msg("mint transaction is gone")
		return outcome{status: common.MintFailed, cause: errors.New("mint transaction expired")}, nil
	}
	return outcome{status: st.Mint, slot: st.Slot, cause: st.Err}, nil
}

// finishAfterMint closes a run that was left running after a mint timeout.
func (s *Server) finishAfterMint(ctx context.Context, runID string, mint common.MintStatus, cause error) error {
	run, err := s.storage.Run(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if run.Status != common.RunRunning {
		return nil
	}
	status := common.RunDone
	if mint == common.MintFailed {
		status = common.RunFailed
		if cause == nil {
			cause = errors.New("mint failed")
		}
	}
	s.finish(ctx, runID, status, cause)
	return nil
}
