//go:build integration_test
// +build integration_test

package launchdb

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"

	"gitlab.com/scpcorp/candy-launcher/common"
)

const EnvPostgresConfig = "POSTGRES_CONFIG"

func defaultFuzzer() *fuzz.Fuzzer {
	return fuzz.New().NilChance(0).NumElements(1, 150).Funcs(
		func(s *common.SolanaTxID, c fuzz.Continue) {
			var addr common.SolanaAddress
			c.Fuzz(&addr)
			*s = common.SolanaTxID(addr.String())
		},
	)
}

func NewTestLaunchDB(t *testing.T) *LaunchDB {
	postgresConfigPath := os.Getenv(EnvPostgresConfig)
	db, err := OpenPostgres(postgresConfigPath)
	require.NoError(t, err)
	require.NoError(t, db.Ping())
	ldb, err := NewDB(db)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, ldb.DropSchemas(true))
		require.NoError(t, ldb.Close())
	})

	return ldb
}

func TestIntegrationCreateSchemasTwice(t *testing.T) {
	ldb := NewTestLaunchDB(t)
	require.NoError(t, ldb.CreateSchemas())
}

func TestIntegrationRunLifecycle(t *testing.T) {
	f := defaultFuzzer()
	ldb := NewTestLaunchDB(t)
	ctx := context.Background()

	id, err := ldb.CreateRun(ctx, "genesis", "devnet")
	require.NoError(t, err)

	run, err := ldb.Run(ctx, id)
	require.NoError(t, err)
	require.Equal(t, common.RunRunning, run.Status)
	require.Equal(t, "genesis", run.Campaign)
	require.Empty(t, run.Steps)
	require.Nil(t, run.Mint)

	var txs [3]common.SolanaTxID
	for i := range txs {
		f.Fuzz(&txs[i])
	}
	require.NoError(t, ldb.AddStep(ctx, id, common.StepFetchProgram, ""))
	require.NoError(t, ldb.AddStep(ctx, id, common.StepCreateConfig, string(txs[0])))
	// Retried step replaces the transaction.
	require.NoError(t, ldb.AddStep(ctx, id, common.StepCreateConfig, string(txs[1])))
	require.NoError(t, ldb.SetAddresses(ctx, id, "config", "machine", "abcdef"))
	require.NoError(t, ldb.SetMint(ctx, id, txs[2]))
	require.NoError(t, ldb.FinishRun(ctx, id, common.RunDone, ""))

	run, err = ldb.Run(ctx, id)
	require.NoError(t, err)
	require.Equal(t, common.RunDone, run.Status)
	require.Equal(t, "machine", run.MachineAddress)
	require.Len(t, run.Steps, 2)
	require.Equal(t, string(txs[1]), run.Steps[1].TxID)
	require.NotNil(t, run.Mint)
	require.Equal(t, txs[2], run.Mint.TxID)
	require.Equal(t, common.MintPending, run.Mint.Status)

	uuids, err := ldb.KnownUUIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"abcdef"}, uuids)

	pending, err := ldb.PendingMints(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, ldb.SetMintStatus(ctx, txs[2], common.MintConfirmed, 77))
	pending, err = ldb.PendingMints(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	run, err = ldb.Run(ctx, id)
	require.NoError(t, err)
	require.Equal(t, common.MintConfirmed, run.Mint.Status)
	require.Equal(t, uint64(77), run.Mint.Slot)
}

func TestIntegrationMissingRun(t *testing.T) {
	ldb := NewTestLaunchDB(t)
	ctx := context.Background()

	_, err := ldb.Run(ctx, "nope")
	require.ErrorIs(t, err, common.ErrNotExists)
	require.ErrorIs(t, ldb.AddStep(ctx, "nope", common.StepFund, "x"), common.ErrNotExists)
	require.ErrorIs(t, ldb.FinishRun(ctx, "nope", common.RunFailed, "boom"), common.ErrNotExists)
	require.ErrorIs(t, ldb.SetMintStatus(ctx, "nope", common.MintFailed, 0), common.ErrNotExists)
	require.Error(t, ldb.FinishRun(ctx, "nope", common.RunRunning, ""))
}

func TestIntegrationHistory(t *testing.T) {
	ldb := NewTestLaunchDB(t)
	ctx := context.Background()

	base := time.Unix(1700000000, 0).UTC()
	var tick int64
	ldb.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := ldb.CreateRun(ctx, fmt.Sprintf("c%d", i), "localnet")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	page, err := ldb.History(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, ids[4], page[0].ID)
	require.Equal(t, ids[3], page[1].ID)

	page, err = ldb.History(ctx, 10, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, ids[0], page[0].ID)

	page, err = ldb.History(ctx, 10, 5)
	require.NoError(t, err)
	require.Empty(t, page)

	_, err = ldb.History(ctx, 0, 0)
	require.Error(t, err)
}

func TestIntegrationConcurrentSteps(t *testing.T) {
	ldb := NewTestLaunchDB(t)
	ctx := context.Background()

	id, err := ldb.CreateRun(ctx, "genesis", "devnet")
	require.NoError(t, err)

	steps := []common.Step{
		common.StepFetchProgram,
		common.StepFund,
		common.StepCreateConfig,
		common.StepPopulateConfig,
		common.StepDeriveMachine,
		common.StepInitializeMachine,
	}
	var wg sync.WaitGroup
	wg.Add(len(steps))
	for _, step := range steps {
		step := step
		go func() {
			defer wg.Done()
			require.NoError(t, ldb.AddStep(ctx, id, step, string(step)))
		}()
	}
	wg.Wait()

	run, err := ldb.Run(ctx, id)
	require.NoError(t, err)
	require.Len(t, run.Steps, len(steps))
}
