package solana

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ProgramTable lists the on-chain programs the launcher talks to.
type ProgramTable struct {
	CandyMachine           solana.PublicKey
	Token                  solana.PublicKey
	TokenMetadata          solana.PublicKey
	AssociatedTokenAccount solana.PublicKey
}

// DefaultPrograms returns the program addresses deployed on every public
// cluster.
func DefaultPrograms() ProgramTable {
	return ProgramTable{
		CandyMachine:           solana.MustPublicKeyFromBase58("cndyAnrLdpjq1Ssp1z8xxDsB8dxe7u4HL5Nxi2K5WXZ"),
		Token:                  solana.TokenProgramID,
		TokenMetadata:          solana.TokenMetadataProgramID,
		AssociatedTokenAccount: solana.SPLAssociatedTokenAccountProgramID,
	}
}

// ClusterConfig is resolved once at start and passed to every
// orchestrator.
type ClusterConfig struct {
	// Cluster endpoints.
	Cluster rpc.Cluster

	// Programs invoked by launches.
	Programs ProgramTable

	// Commitment used for reads, subscriptions and preflight.
	Commitment rpc.CommitmentType

	// TestNetwork enables the airdrop step of setup.
	TestNetwork bool

	// Lamports requested by the airdrop step.
	AirdropLamports uint64

	// Timeout of the mint transaction confirmation.
	MintTimeout time.Duration

	// Timeout of every other setup transaction confirmation.
	StepTimeout time.Duration

	// Interval between signature status polls.
	PollInterval time.Duration
}

func newClusterConfig(cluster rpc.Cluster, testNetwork bool) ClusterConfig {
	return ClusterConfig{
		Cluster:         cluster,
		Programs:        DefaultPrograms(),
		Commitment:      rpc.CommitmentConfirmed,
		TestNetwork:     testNetwork,
		AirdropLamports: solana.LAMPORTS_PER_SOL,
		MintTimeout:     15 * time.Second,
		StepTimeout:     time.Minute,
		PollInterval:    defaultPollInterval,
	}
}

func NewDevNetConfig() ClusterConfig {
	return newClusterConfig(rpc.DevNet, true)
}

func NewTestNetConfig() ClusterConfig {
	return newClusterConfig(rpc.TestNet, true)
}

func NewMainNetConfig() ClusterConfig {
	return newClusterConfig(rpc.MainNetBeta, false)
}

func NewLocalNetConfig() ClusterConfig {
	return newClusterConfig(rpc.LocalNet, true)
}

// ConfigForCluster returns the config of a cluster by its name.
func ConfigForCluster(name string) (ClusterConfig, error) {
	switch name {
	case "devnet":
		return NewDevNetConfig(), nil
	case "testnet":
		return NewTestNetConfig(), nil
	case "mainnet-beta", "mainnet":
		return NewMainNetConfig(), nil
	case "localnet":
		return NewLocalNetConfig(), nil
	default:
		return ClusterConfig{}, fmt.Errorf("unknown cluster %q", name)
	}
}

// WithEndpoints replaces RPC and websocket endpoints, e.g. with a provider
// URL carrying an API key. Empty values keep the defaults.
func (c ClusterConfig) WithEndpoints(rpcURL, wsURL string) ClusterConfig {
	if rpcURL != "" {
		c.Cluster.RPC = rpcURL
	}
	if wsURL != "" {
		c.Cluster.WS = wsURL
	}
	return c
}
