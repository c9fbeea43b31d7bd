package launcher

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"

	"gitlab.com/scpcorp/candy-launcher/common"
	candy "gitlab.com/scpcorp/candy-launcher/solana"
)

// Storage is the run ledger.
type Storage interface {
	CreateRun(ctx context.Context, campaign, cluster string) (string, error)
	AddStep(ctx context.Context, runID string, step common.Step, txID string) error
	SetAddresses(ctx context.Context, runID, config, machine, uuid string) error
	FinishRun(ctx context.Context, runID string, status common.RunStatus, errMsg string) error
	SetMint(ctx context.Context, runID string, txID common.SolanaTxID) error
	SetMintStatus(ctx context.Context, txID common.SolanaTxID, status common.MintStatus, slot uint64) error
	PendingMints(ctx context.Context, limit int) ([]common.MintRecord, error)
	KnownUUIDs(ctx context.Context) ([]string, error)
	Run(ctx context.Context, runID string) (*common.RunRecord, error)
	History(ctx context.Context, limit, offset int) ([]common.RunRecord, error)
}

// Chain is the candy machine side of a launch.
type Chain interface {
	Setup(ctx context.Context, p candy.SetupParams) (*candy.SetupResult, error)
	TxStatus(ctx context.Context, sig solana.Signature) (candy.Status, error)
	MachineState(ctx context.Context, machine solana.PublicKey) (*candy.MachineState, error)
	ConfigLines(ctx context.Context, config solana.PublicKey) ([]candy.ConfigLine, error)
}

type Settings struct {
	Cluster string

	// Launches accepted while another one runs.
	LaunchQueueSize int
	HistoryPageSize int

	MintCheckInterval time.Duration
	MintCheckBatch    int
	// A mint the cluster still does not know after this long is failed:
	// its blockhash has expired.
	MintDecayTime time.Duration
}

func DefaultSettings(cluster string) *Settings {
	return &Settings{
		Cluster:           cluster,
		LaunchQueueSize:   16,
		HistoryPageSize:   20,
		MintCheckInterval: 30 * time.Second,
		MintCheckBatch:    50,
		MintDecayTime:     3 * time.Minute,
	}
}
