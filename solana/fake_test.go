package solana

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"
)

type fakeSubscription struct {
	resp         chan *ws.SignatureResult
	errs         chan error
	unsubscribed atomic.Int32
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{
		resp: make(chan *ws.SignatureResult, 1),
		errs: make(chan error, 1),
	}
}

func (s *fakeSubscription) Response() <-chan *ws.SignatureResult { return s.resp }
func (s *fakeSubscription) Err() <-chan error                    { return s.errs }
func (s *fakeSubscription) Unsubscribe()                         { s.unsubscribed.Add(1) }

// fakeCluster serves accounts from a map and reports every sent transaction
// as confirmed unless status is overridden.
type fakeCluster struct {
	mu sync.Mutex

	accounts map[solana.PublicKey]*Account
	sent     []*solana.Transaction
	skipped  []bool
	airdrops int

	// status is called with the 1-based number of the status request.
	status      func(n int) (*rpc.SignatureStatusesResult, error)
	statusCalls int

	subs   []*fakeSubscription
	subErr error
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		accounts: map[solana.PublicKey]*Account{},
	}
}

func confirmedStatus(n int) (*rpc.SignatureStatusesResult, error) {
	one := uint64(1)
	return &rpc.SignatureStatusesResult{Slot: 100, Confirmations: &one}, nil
}

func (c *fakeCluster) Account(ctx context.Context, addr solana.PublicKey) (*Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	acc, ok := c.accounts[addr]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

func (c *fakeCluster) setAccount(addr solana.PublicKey, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[addr] = &Account{Data: data, Lamports: 1}
}

func (c *fakeCluster) MinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error) {
	return size * 10, nil
}

func (c *fakeCluster) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	return solana.Hash{1, 2, 3}, nil
}

func (c *fakeCluster) SendTransaction(ctx context.Context, tx *solana.Transaction, skipPreflight bool) (solana.Signature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, tx)
	c.skipped = append(c.skipped, skipPreflight)
	return tx.Signatures[0], nil
}

func (c *fakeCluster) SignatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error) {
	c.mu.Lock()
	c.statusCalls++
	n := c.statusCalls
	status := c.status
	c.mu.Unlock()
	if status == nil {
		return confirmedStatus(n)
	}
	return status(n)
}

func (c *fakeCluster) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusCalls
}

func (c *fakeCluster) SubscribeSignature(sig solana.Signature) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subErr != nil {
		return nil, c.subErr
	}
	sub := newFakeSubscription()
	c.subs = append(c.subs, sub)
	return sub, nil
}

func (c *fakeCluster) RequestAirdrop(ctx context.Context, addr solana.PublicKey, lamports uint64) (solana.Signature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.airdrops++
	return solana.Signature{byte(c.airdrops)}, nil
}

func (c *fakeCluster) sentTransactions() []*solana.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*solana.Transaction(nil), c.sent...)
}

// idlAccountData builds the account the program publishes its interface in.
func idlAccountData(t *testing.T, idl Idl) []byte {
	raw, err := json.Marshal(idl)
	require.NoError(t, err)

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	_, err = zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	data := make([]byte, 8+32, 8+32+4+compressed.Len())
	data = binary.LittleEndian.AppendUint32(data, uint32(compressed.Len()))
	return append(data, compressed.Bytes()...)
}

func candyMachineIdl() Idl {
	idl := Idl{Version: "0.0.0", Name: "nft_candy_machine"}
	for _, name := range []string{
		instructionInitializeConfig,
		instructionAddConfigLines,
		instructionInitializeCandyMachine,
		instructionMintNft,
	} {
		idl.Instructions = append(idl.Instructions, IdlInstruction{
			Name:     name,
			Accounts: defaultInstructionAccounts[name],
		})
	}
	return idl
}

func machineAccountData(t *testing.T, state MachineState) []byte {
	acc := candyMachineAccount{
		Authority: state.Authority,
		Wallet:    state.Wallet,
		TokenMint: state.TokenMint,
		Config:    state.Config,
		Data: candyMachineData{
			UUID:           state.UUID,
			Price:          state.Price,
			ItemsAvailable: state.ItemsAvailable,
			GoLiveDate:     state.GoLiveDate,
		},
		ItemsRedeemed: state.ItemsRedeemed,
		Bump:          state.Bump,
	}
	copy(acc.Discriminator[:], candyMachineDiscriminator)
	data, err := bin.MarshalBorsh(&acc)
	require.NoError(t, err)
	return data
}

func configAccountData(lines []ConfigLine) []byte {
	data := make([]byte, ConfigSize(len(lines)))
	binary.LittleEndian.PutUint32(data[ConfigArrayStart:], uint32(len(lines)))
	for i, line := range lines {
		off := ConfigArrayStart + 4 + i*ConfigLineSize
		binary.LittleEndian.PutUint32(data[off:], maxNameLength)
		copy(data[off+4:], line.Name)
		off += 4 + maxNameLength
		binary.LittleEndian.PutUint32(data[off:], maxURILength)
		copy(data[off+4:], line.URI)
	}
	return data
}

// keySequence returns the given keys in order, then random ones.
func keySequence(keys ...solana.PrivateKey) func() (solana.PrivateKey, error) {
	var mu sync.Mutex
	return func() (solana.PrivateKey, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(keys) == 0 {
			return solana.NewRandomPrivateKey()
		}
		k := keys[0]
		keys = keys[1:]
		return k, nil
	}
}

func testKey(t *testing.T) solana.PrivateKey {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

func newTestLauncher(t *testing.T, config ClusterConfig, cluster Cluster) *Launcher {
	key := testKey(t)
	config.PollInterval = 10 * time.Millisecond
	l, err := NewLauncher(config, cluster, key)
	require.NoError(t, err)
	return l
}
