package solana

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"gitlab.com/scpcorp/candy-launcher/logging"
)

const defaultPollInterval = 2 * time.Second

// Source tells which path resolved a wait.
type Source string

const (
	SourcePush    Source = "push"
	SourcePoll    Source = "poll"
	SourceTimer   Source = "timer"
	SourceContext Source = "context"
)

// Confirmation is a successful outcome of a transaction.
type Confirmation struct {
	Signature solana.Signature
	Slot      uint64

	// Nil if the transaction was finalized or the push path won.
	Confirmations *uint64

	Source Source
}

// WaitOptions configures AwaitConfirmation.
type WaitOptions struct {
	// Zero disables the timer; ctx still applies.
	Timeout time.Duration

	// Poll enables the signature status loop next to the subscription.
	Poll bool

	// Defaults to 2s.
	PollInterval time.Duration
}

type outcome struct {
	conf *Confirmation
	err  error
}

// waiter delivers the first outcome produced by any path. The flag is set
// before anything is sent, so the channel receives exactly one value.
type waiter struct {
	sig    solana.Signature
	done   atomic.Bool
	result chan outcome
	log    zerolog.Logger
}

func (w *waiter) resolve(source Source, conf *Confirmation, err error) bool {
	if !w.done.CompareAndSwap(false, true) {
		w.log.Debug().Str("source", string(source)).Msg("late outcome ignored")
		return false
	}
	if conf != nil {
		conf.Signature = w.sig
		conf.Source = source
		w.log.Debug().Str("source", string(source)).Uint64("slot", conf.Slot).Msg("confirmed")
	} else {
		w.log.Debug().Str("source", string(source)).Err(err).Msg("failed")
	}
	w.result <- outcome{conf: conf, err: err}
	return true
}

// AwaitConfirmation waits until sig is confirmed or fails. The subscription
// races the optional poll loop and the timer; the first terminal outcome
// wins and later ones are dropped. Failure is *ConfirmationError, timeout is
// ErrTimeout.
func AwaitConfirmation(ctx context.Context, cluster Cluster, sig solana.Signature, opts WaitOptions) (*Confirmation, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := &waiter{
		sig:    sig,
		result: make(chan outcome, 1),
		log:    logging.WithComponent("waiter").With().Stringer("signature", sig).Logger(),
	}

	sub, err := cluster.SubscribeSignature(sig)
	if err != nil {
		if !opts.Poll {
			return nil, fmt.Errorf("cannot subscribe to %s: %w", sig, err)
		}
		w.log.Warn().Err(err).Msg("subscription failed, polling only")
	} else {
		defer sub.Unsubscribe()
		go w.push(ctx, sub, opts.Poll)
	}

	if opts.Timeout > 0 {
		timer := time.AfterFunc(opts.Timeout, func() {
			w.resolve(SourceTimer, nil, ErrTimeout)
		})
		defer timer.Stop()
	}

	if opts.Poll {
		go w.poll(ctx, cluster, opts.PollInterval)
	}

	select {
	case out := <-w.result:
		return out.conf, out.err
	case <-ctx.Done():
		if w.resolve(SourceContext, nil, ctx.Err()) {
			return nil, ctx.Err()
		}
		out := <-w.result
		return out.conf, out.err
	}
}

// push waits for the subscription notification. Errors of the subscription
// itself are terminal only if nothing else can resolve the wait.
func (w *waiter) push(ctx context.Context, sub Subscription, polling bool) {
	var subErr error
	select {
	case <-ctx.Done():
		return
	case res, ok := <-sub.Response():
		if !ok {
			subErr = fmt.Errorf("subscription closed")
			break
		}
		if res.Value.Err != nil {
			w.resolve(SourcePush, nil, &ConfirmationError{
				Signature: w.sig,
				Slot:      res.Context.Slot,
				Value:     res.Value.Err,
			})
			return
		}
		w.resolve(SourcePush, &Confirmation{Slot: res.Context.Slot}, nil)
		return
	case err := <-sub.Err():
		subErr = fmt.Errorf("subscription: %w", err)
	}

	if polling {
		w.log.Warn().Err(subErr).Msg("push path lost, polling continues")
		return
	}
	w.resolve(SourcePush, nil, subErr)
}

// poll asks for the signature status right away and then every interval
// until some path resolves the wait.
func (w *waiter) poll(ctx context.Context, cluster Cluster, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for !w.done.Load() {
		status, err := cluster.SignatureStatus(ctx, w.sig)
		switch {
		case err != nil:
			if ctx.Err() == nil {
				w.log.Warn().Err(err).Msg("status request failed")
			}
		case status == nil:
			w.log.Debug().Msg("status unknown")
		case status.Err != nil:
			w.resolve(SourcePoll, nil, &ConfirmationError{
				Signature: w.sig,
				Slot:      status.Slot,
				Value:     status.Err,
			})
			return
		case isConfirmed(status):
			w.resolve(SourcePoll, &Confirmation{
				Slot:          status.Slot,
				Confirmations: status.Confirmations,
			}, nil)
			return
		default:
			w.log.Debug().Uint64("slot", status.Slot).Msg("no confirmations yet")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// isConfirmed reports at least one confirmation. Finalized statuses carry
// no confirmation count.
func isConfirmed(status *rpc.SignatureStatusesResult) bool {
	if status.Confirmations != nil {
		return *status.Confirmations >= 1
	}
	return status.ConfirmationStatus == rpc.ConfirmationStatusFinalized
}
