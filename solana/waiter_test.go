package solana

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/stretchr/testify/require"
)

var testSig = solana.Signature{7, 7, 7}

func pendingStatus(n int) (*rpc.SignatureStatusesResult, error) {
	return nil, nil
}

func pushResult(slot uint64, txErr interface{}) *ws.SignatureResult {
	res := &ws.SignatureResult{}
	res.Context.Slot = slot
	res.Value.Err = txErr
	return res
}

func customError(code float64) interface{} {
	return map[string]interface{}{
		"InstructionError": []interface{}{float64(5), map[string]interface{}{"Custom": code}},
	}
}

// waitForSub blocks until the waiter has subscribed.
func waitForSub(t *testing.T, c *fakeCluster) *fakeSubscription {
	var sub *fakeSubscription
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if len(c.subs) == 0 {
			return false
		}
		sub = c.subs[0]
		return true
	}, time.Second, time.Millisecond)
	return sub
}

type waitResult struct {
	conf *Confirmation
	err  error
}

func awaitAsync(c *fakeCluster, opts WaitOptions) chan waitResult {
	out := make(chan waitResult, 1)
	go func() {
		conf, err := AwaitConfirmation(context.Background(), c, testSig, opts)
		out <- waitResult{conf, err}
	}()
	return out
}

func TestAwaitPushFirst(t *testing.T) {
	c := newFakeCluster()
	c.status = pendingStatus

	out := awaitAsync(c, WaitOptions{Timeout: time.Minute, Poll: true, PollInterval: 5 * time.Millisecond})
	sub := waitForSub(t, c)
	sub.resp <- pushResult(42, nil)

	res := <-out
	require.NoError(t, res.err)
	require.Equal(t, SourcePush, res.conf.Source)
	require.Equal(t, uint64(42), res.conf.Slot)
	require.Equal(t, testSig, res.conf.Signature)
	require.Equal(t, int32(1), sub.unsubscribed.Load())

	// Polling stops once resolved.
	calls := c.calls()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, calls, c.calls())
}

func TestAwaitPushFailure(t *testing.T) {
	c := newFakeCluster()

	out := awaitAsync(c, WaitOptions{Timeout: time.Minute})
	sub := waitForSub(t, c)
	sub.resp <- pushResult(43, customError(311))

	res := <-out
	var confErr *ConfirmationError
	require.True(t, errors.As(res.err, &confErr))
	require.Equal(t, uint64(43), confErr.Slot)
	require.ErrorIs(t, res.err, ErrCandyMachineEmpty)
	require.Equal(t, int32(1), sub.unsubscribed.Load())
}

func TestAwaitPollFirst(t *testing.T) {
	c := newFakeCluster()
	c.status = func(n int) (*rpc.SignatureStatusesResult, error) {
		if n < 3 {
			return nil, nil
		}
		return confirmedStatus(n)
	}

	conf, err := AwaitConfirmation(context.Background(), c, testSig, WaitOptions{
		Timeout:      time.Minute,
		Poll:         true,
		PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Equal(t, SourcePoll, conf.Source)
	require.Equal(t, uint64(100), conf.Slot)
	require.Equal(t, 3, c.calls())

	// A push arriving after resolution changes nothing.
	sub := c.subs[0]
	sub.resp <- pushResult(1, customError(300))
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, int32(1), sub.unsubscribed.Load())
}

func TestAwaitTimerFirst(t *testing.T) {
	c := newFakeCluster()
	c.status = pendingStatus

	start := time.Now()
	conf, err := AwaitConfirmation(context.Background(), c, testSig, WaitOptions{
		Timeout:      30 * time.Millisecond,
		Poll:         true,
		PollInterval: 5 * time.Millisecond,
	})
	require.ErrorIs(t, err, ErrTimeout)
	require.Nil(t, conf)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	sub := c.subs[0]
	require.Equal(t, int32(1), sub.unsubscribed.Load())

	// Late push and poll do not resurrect the wait.
	sub.resp <- pushResult(5, nil)
	calls := c.calls()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, calls, c.calls())
	require.Equal(t, int32(1), sub.unsubscribed.Load())
}

func TestAwaitPollErrorStopsPolling(t *testing.T) {
	c := newFakeCluster()
	c.status = func(n int) (*rpc.SignatureStatusesResult, error) {
		return &rpc.SignatureStatusesResult{Slot: 9, Err: customError(309)}, nil
	}

	_, err := AwaitConfirmation(context.Background(), c, testSig, WaitOptions{
		Timeout:      time.Minute,
		Poll:         true,
		PollInterval: 5 * time.Millisecond,
	})
	var confErr *ConfirmationError
	require.True(t, errors.As(err, &confErr))
	require.Equal(t, uint64(9), confErr.Slot)
	require.ErrorIs(t, err, ErrNotEnoughSOL)

	time.Sleep(30 * time.Millisecond)
	require.Equal(t, 1, c.calls())
	require.Equal(t, int32(1), c.subs[0].unsubscribed.Load())
}

func TestAwaitPollTransportErrorKeepsPolling(t *testing.T) {
	c := newFakeCluster()
	c.status = func(n int) (*rpc.SignatureStatusesResult, error) {
		if n == 1 {
			return nil, errors.New("connection reset")
		}
		return confirmedStatus(n)
	}

	conf, err := AwaitConfirmation(context.Background(), c, testSig, WaitOptions{
		Timeout:      time.Minute,
		Poll:         true,
		PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Equal(t, SourcePoll, conf.Source)
	require.Equal(t, 2, c.calls())
}

func TestAwaitSubscribeFailure(t *testing.T) {
	c := newFakeCluster()
	c.subErr = errors.New("ws down")

	_, err := AwaitConfirmation(context.Background(), c, testSig, WaitOptions{Timeout: time.Minute})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrTimeout)
	require.Equal(t, 0, c.calls())

	conf, err := AwaitConfirmation(context.Background(), c, testSig, WaitOptions{
		Timeout:      time.Minute,
		Poll:         true,
		PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Equal(t, SourcePoll, conf.Source)
}

func TestAwaitSubscriptionErrorWhilePolling(t *testing.T) {
	c := newFakeCluster()
	c.status = func(n int) (*rpc.SignatureStatusesResult, error) {
		if n < 4 {
			return nil, nil
		}
		return confirmedStatus(n)
	}

	out := awaitAsync(c, WaitOptions{Timeout: time.Minute, Poll: true, PollInterval: 5 * time.Millisecond})
	sub := waitForSub(t, c)
	sub.errs <- errors.New("connection closed")

	res := <-out
	require.NoError(t, res.err)
	require.Equal(t, SourcePoll, res.conf.Source)
	require.Equal(t, int32(1), sub.unsubscribed.Load())
}

func TestAwaitContextCanceled(t *testing.T) {
	c := newFakeCluster()
	c.status = pendingStatus

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := AwaitConfirmation(ctx, c, testSig, WaitOptions{
		Timeout:      time.Minute,
		Poll:         true,
		PollInterval: 5 * time.Millisecond,
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int32(1), c.subs[0].unsubscribed.Load())
}

func TestWaiterResolvesOnce(t *testing.T) {
	w := &waiter{sig: testSig, result: make(chan outcome, 1)}

	require.True(t, w.resolve(SourceTimer, nil, ErrTimeout))
	require.False(t, w.resolve(SourcePush, &Confirmation{Slot: 1}, nil))
	require.False(t, w.resolve(SourcePoll, &Confirmation{Slot: 2}, nil))

	out := <-w.result
	require.ErrorIs(t, out.err, ErrTimeout)
	require.Nil(t, out.conf)
	require.Len(t, w.result, 0)
}

func TestIsConfirmed(t *testing.T) {
	zero, one := uint64(0), uint64(1)
	require.False(t, isConfirmed(&rpc.SignatureStatusesResult{Confirmations: &zero}))
	require.True(t, isConfirmed(&rpc.SignatureStatusesResult{Confirmations: &one}))
	require.True(t, isConfirmed(&rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusFinalized}))
	require.False(t, isConfirmed(&rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusConfirmed}))
}
