package solana

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
)

// Account is the state of an on-chain account.
type Account struct {
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
}

// Subscription is a one-shot signature notification.
// *ws.SignatureSubscription implements it.
type Subscription interface {
	Response() <-chan *ws.SignatureResult
	Err() <-chan error
	Unsubscribe()
}

// Cluster is the subset of the network API used by the launcher.
type Cluster interface {
	// Account returns ErrAccountNotFound if the account does not exist.
	Account(ctx context.Context, addr solana.PublicKey) (*Account, error)
	MinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error)
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction, skipPreflight bool) (solana.Signature, error)

	// SignatureStatus returns nil status if the cluster does not know the
	// signature yet.
	SignatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error)
	SubscribeSignature(sig solana.Signature) (Subscription, error)
	RequestAirdrop(ctx context.Context, addr solana.PublicKey, lamports uint64) (solana.Signature, error)
}

type rpcCluster struct {
	commitment rpc.CommitmentType
	rpc        *rpc.Client
	ws         *ws.Client
}

// Dial connects to the RPC and websocket endpoints of the cluster.
func Dial(ctx context.Context, config ClusterConfig) (*rpcCluster, error) {
	wsClient, err := ws.Connect(ctx, config.Cluster.WS)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to websocket: %w", err)
	}

	return &rpcCluster{
		commitment: config.Commitment,
		rpc:        rpc.New(config.Cluster.RPC),
		ws:         wsClient,
	}, nil
}

func (c *rpcCluster) Account(ctx context.Context, addr solana.PublicKey) (*Account, error) {
	res, err := c.rpc.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{
		Commitment: c.commitment,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("cannot get account %s: %w", addr, err)
	}
	if res.Value == nil {
		return nil, ErrAccountNotFound
	}
	return &Account{
		Owner:    res.Value.Owner,
		Lamports: res.Value.Lamports,
		Data:     res.Value.Data.GetBinary(),
	}, nil
}

func (c *rpcCluster) MinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error) {
	return c.rpc.GetMinimumBalanceForRentExemption(ctx, size, c.commitment)
}

func (c *rpcCluster) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	res, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("cannot get recent blockhash: %w", err)
	}
	return res.Value.Blockhash, nil
}

func (c *rpcCluster) SendTransaction(ctx context.Context, tx *solana.Transaction, skipPreflight bool) (solana.Signature, error) {
	opts := rpc.TransactionOpts{
		SkipPreflight:       skipPreflight,
		PreflightCommitment: c.commitment,
	}
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, opts)
	if err != nil {
		return solana.Signature{}, parsePreflightError(err)
	}
	return sig, nil
}

func (c *rpcCluster) SignatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error) {
	res, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if len(res.Value) == 0 {
		return nil, nil
	}
	return res.Value[0], nil
}

func (c *rpcCluster) SubscribeSignature(sig solana.Signature) (Subscription, error) {
	sub, err := c.ws.SignatureSubscribe(sig, c.commitment)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (c *rpcCluster) RequestAirdrop(ctx context.Context, addr solana.PublicKey, lamports uint64) (solana.Signature, error) {
	return c.rpc.RequestAirdrop(ctx, addr, lamports, c.commitment)
}

// Close releases the websocket connection.
func (c *rpcCluster) Close() error {
	c.ws.Close()
	return c.rpc.Close()
}
