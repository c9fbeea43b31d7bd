// Package launchdb keeps the ledger of launch runs in Postgres.
package launchdb

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"gitlab.com/scpcorp/candy-launcher/common"
	"gitlab.com/scpcorp/candy-launcher/logging"
)

//go:embed schema.sql
var schemaSql string

var creations = regexp.MustCompile(`CREATE[^;]+;`).FindAllString(schemaSql, -1)

func creationSql(tableName string) string {
	hits := make([]string, 0, 1)
	for _, c := range creations {
		if strings.Contains(c, tableName+" (") {
			hits = append(hits, c)
		}
	}
	if len(hits) != 1 {
		panic(fmt.Sprintf("expect exactly one hit for %s, got %d: %v", tableName, len(hits), hits))
	}
	return hits[0]
}

const (
	dropRunsTable = `
DROP TABLE IF EXISTS launch_runs
`
	dropStepsTable = `
DROP TABLE IF EXISTS launch_steps
`
	dropMintsTable = `
DROP TABLE IF EXISTS launch_mints
`
	dropRunStatusType = `
DROP TYPE IF EXISTS run_status
`
	dropMintStatusType = `
DROP TYPE IF EXISTS mint_status
`

	createMintsStatusIndex = `
CREATE INDEX IF NOT EXISTS launch_mints_status_idx ON launch_mints(status)
`
)

var (
	createRunsTable = `
DO $$
BEGIN
       IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'run_status') THEN
               CREATE TYPE run_status AS ENUM ('running', 'done', 'skipped', 'failed');
       END IF;
END$$;

` + creationSql("launch_runs")
	createStepsTable = creationSql("launch_steps")
	createMintsTable = `
DO $$
BEGIN
       IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'mint_status') THEN
               CREATE TYPE mint_status AS ENUM ('pending', 'confirmed', 'failed');
       END IF;
END$$;

` + creationSql("launch_mints")
)

// Types are dropped after the tables using them.
var dropSchemas = []struct {
	query       string
	description string
}{
	{dropMintsTable, "drop mints table"},
	{dropStepsTable, "drop steps table"},
	{dropRunsTable, "drop runs table"},
	{dropRunStatusType, "drop run_status type"},
	{dropMintStatusType, "drop mint_status type"},
}

var createSchemas = []struct {
	query       string
	description string
}{
	{createRunsTable, "create runs table"},
	{createStepsTable, "create steps table"},
	{createMintsTable, "create mints table"},
	{createMintsStatusIndex, "create mints status index"},
}

func handleErrorWithRollback(err error, tx *sql.Tx) error {
	if rollbackErr := tx.Rollback(); rollbackErr != nil {
		return rollbackErr
	}
	return err
}

func timeFromSql(t time.Time) time.Time {
	return t.UTC()
}

func runStatusToSql(s common.RunStatus) RunStatus {
	switch s {
	case common.RunDone:
		return RunStatusDone
	case common.RunSkipped:
		return RunStatusSkipped
	case common.RunFailed:
		return RunStatusFailed
	default:
		return RunStatusRunning
	}
}

func runStatusFromSql(s RunStatus) common.RunStatus {
	switch s {
	case RunStatusDone:
		return common.RunDone
	case RunStatusSkipped:
		return common.RunSkipped
	case RunStatusFailed:
		return common.RunFailed
	default:
		return common.RunRunning
	}
}

func mintStatusToSql(s common.MintStatus) MintStatus {
	switch s {
	case common.MintConfirmed:
		return MintStatusConfirmed
	case common.MintFailed:
		return MintStatusFailed
	default:
		return MintStatusPending
	}
}

func mintStatusFromSql(s MintStatus) common.MintStatus {
	switch s {
	case MintStatusConfirmed:
		return common.MintConfirmed
	case MintStatusFailed:
		return common.MintFailed
	default:
		return common.MintPending
	}
}

func mintFromSql(m LaunchMint) common.MintRecord {
	return common.MintRecord{
		TxID:      common.SolanaTxID(m.TxID),
		RunID:     m.RunID,
		Status:    mintStatusFromSql(m.Status),
		Slot:      uint64(m.Slot),
		CheckedAt: timeFromSql(m.CheckedAt),
	}
}

type LaunchDB struct {
	db  *sql.DB
	log zerolog.Logger

	now func() time.Time
}

// NewDB creates the schema if needed. On success the LaunchDB owns db and
// Close closes it.
func NewDB(db *sql.DB) (*LaunchDB, error) {
	ldb := &LaunchDB{
		db:  db,
		log: logging.WithComponent("launchdb"),
		now: func() time.Time { return time.Now().UTC() },
	}
	if err := ldb.CreateSchemas(); err != nil {
		return nil, fmt.Errorf("failed to create schemas: %w", err)
	}
	return ldb, nil
}

// trace logs entry and exit of a ledger method under one correlation id.
func (ldb *LaunchDB) trace(method string) func() {
	lid := uuid.NewString()
	ldb.log.Debug().Str("lid", lid).Msgf("%s started", method)
	return func() {
		ldb.log.Debug().Str("lid", lid).Msgf("%s exited", method)
	}
}

func (ldb *LaunchDB) CreateSchemas() error {
	defer ldb.trace("CreateSchemas")()
	tx, err := ldb.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, s := range createSchemas {
		if _, err := tx.Exec(s.query); err != nil {
			return handleErrorWithRollback(fmt.Errorf("failed to %s: %w", s.description, err), tx)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (ldb *LaunchDB) DropSchemas(cascade bool) error {
	defer ldb.trace("DropSchemas")()
	tx, err := ldb.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	suffix := ""
	if cascade {
		suffix = " CASCADE"
	}
	for _, s := range dropSchemas {
		query := s.query + suffix
		if _, err := tx.Exec(query); err != nil {
			return handleErrorWithRollback(fmt.Errorf("failed to %s: %w", s.description, err), tx)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (ldb *LaunchDB) createDBObjects(ctx context.Context) (*sql.Tx, *Queries, error) {
	tx, err := ldb.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	lq := New(ldb.db).WithTx(tx)
	return tx, lq, nil
}

type ldbMethod func(ctx context.Context, lq *Queries) error

type txCommitError struct {
	msg string
}

func (txErr txCommitError) Error() string {
	return txErr.msg
}

func (ldb *LaunchDB) runRetryableTransaction(ctx context.Context, fn ldbMethod) error {
	return retry.Do(
		func() error {
			tx, lq, err := ldb.createDBObjects(ctx)
			if err != nil {
				return fmt.Errorf("failed to create db objects: %w", err)
			}
			if err := fn(ctx, lq); err != nil {
				return handleErrorWithRollback(err, tx)
			}
			if err := tx.Commit(); err != nil {
				return txCommitError{msg: err.Error()}
			}
			return nil
		},
		retry.Context(ctx),
		retry.Delay(time.Second),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if errors.As(err, &txCommitError{}) {
				return true
			}
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
				return true
			}
			return false
		}),
	)
}

func expectOneRow(n int64, err error, what string) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, common.ErrNotExists)
	}
	return nil
}

// CreateRun opens a new run in the running state and returns its id.
func (ldb *LaunchDB) CreateRun(ctx context.Context, campaign, cluster string) (string, error) {
	defer ldb.trace("CreateRun")()
	id := uuid.NewString()
	if err := ldb.runRetryableTransaction(ctx, func(innerCtx context.Context, lq *Queries) error {
		return lq.InsertRun(innerCtx, InsertRunParams{
			ID:        id,
			Campaign:  campaign,
			Cluster:   cluster,
			Status:    RunStatusRunning,
			CreatedAt: ldb.now(),
		})
	}); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// AddStep records the transaction produced by one setup step. Recording
// the same step again replaces the transaction id.
func (ldb *LaunchDB) AddStep(ctx context.Context, runID string, step common.Step, txID string) error {
	defer ldb.trace("AddStep")()
	return ldb.runRetryableTransaction(ctx, func(innerCtx context.Context, lq *Queries) error {
		if _, err := lq.SelectRun(innerCtx, runID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("run %s: %w", runID, common.ErrNotExists)
			}
			return fmt.Errorf("failed to select run: %w", err)
		}
		return lq.UpsertStep(innerCtx, UpsertStepParams{
			RunID:      runID,
			Step:       string(step),
			TxID:       txID,
			RecordedAt: ldb.now(),
		})
	})
}

func (ldb *LaunchDB) SetAddresses(ctx context.Context, runID, config, machine, shortUUID string) error {
	defer ldb.trace("SetAddresses")()
	return ldb.runRetryableTransaction(ctx, func(innerCtx context.Context, lq *Queries) error {
		n, err := lq.UpdateRunAddresses(innerCtx, UpdateRunAddressesParams{
			ID:             runID,
			ConfigAddress:  config,
			MachineAddress: machine,
			Uuid:           shortUUID,
			UpdatedAt:      ldb.now(),
		})
		return expectOneRow(n, err, "run "+runID)
	})
}

// FinishRun moves the run to its final status.
func (ldb *LaunchDB) FinishRun(ctx context.Context, runID string, status common.RunStatus, errMsg string) error {
	defer ldb.trace("FinishRun")()
	if status == common.RunRunning {
		return fmt.Errorf("run can not finish as %s", status)
	}
	return ldb.runRetryableTransaction(ctx, func(innerCtx context.Context, lq *Queries) error {
		n, err := lq.UpdateRunStatus(innerCtx, UpdateRunStatusParams{
			ID:        runID,
			Status:    runStatusToSql(status),
			Error:     errMsg,
			UpdatedAt: ldb.now(),
		})
		return expectOneRow(n, err, "run "+runID)
	})
}

// SetMint records the mint transaction of a run as pending.
func (ldb *LaunchDB) SetMint(ctx context.Context, runID string, txID common.SolanaTxID) error {
	defer ldb.trace("SetMint")()
	return ldb.runRetryableTransaction(ctx, func(innerCtx context.Context, lq *Queries) error {
		return lq.InsertMint(innerCtx, InsertMintParams{
			TxID:      string(txID),
			RunID:     runID,
			Status:    MintStatusPending,
			CheckedAt: ldb.now(),
		})
	})
}

func (ldb *LaunchDB) SetMintStatus(ctx context.Context, txID common.SolanaTxID, status common.MintStatus, slot uint64) error {
	defer ldb.trace("SetMintStatus")()
	return ldb.runRetryableTransaction(ctx, func(innerCtx context.Context, lq *Queries) error {
		n, err := lq.UpdateMintStatus(innerCtx, UpdateMintStatusParams{
			TxID:      string(txID),
			Status:    mintStatusToSql(status),
			Slot:      int64(slot),
			CheckedAt: ldb.now(),
		})
		return expectOneRow(n, err, "mint "+string(txID))
	})
}

// PendingMints returns up to limit mints not yet resolved, least recently
// checked first.
func (ldb *LaunchDB) PendingMints(ctx context.Context, limit int) ([]common.MintRecord, error) {
	defer ldb.trace("PendingMints")()
	var records []common.MintRecord
	if err := ldb.runRetryableTransaction(ctx, func(innerCtx context.Context, lq *Queries) error {
		mints, err := lq.SelectPendingMints(innerCtx, int32(limit))
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		records = make([]common.MintRecord, 0, len(mints))
		for _, m := range mints {
			records = append(records, mintFromSql(m))
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return records, nil
}

func (ldb *LaunchDB) KnownUUIDs(ctx context.Context) ([]string, error) {
	defer ldb.trace("KnownUUIDs")()
	var uuids []string
	if err := ldb.runRetryableTransaction(ctx, func(innerCtx context.Context, lq *Queries) error {
		var err error
		uuids, err = lq.SelectKnownUUIDs(innerCtx)
		return err
	}); err != nil {
		return nil, err
	}
	return uuids, nil
}

// fillRuns converts runs and attaches their steps and mints.
func fillRuns(ctx context.Context, lq *Queries, runs []LaunchRun) ([]common.RunRecord, error) {
	if len(runs) == 0 {
		return []common.RunRecord{}, nil
	}
	ids := make([]string, len(runs))
	byID := make(map[string]int, len(runs))
	records := make([]common.RunRecord, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
		byID[r.ID] = i
		records[i] = common.RunRecord{
			ID:             r.ID,
			Campaign:       r.Campaign,
			Cluster:        r.Cluster,
			Status:         runStatusFromSql(r.Status),
			ConfigAddress:  r.ConfigAddress,
			MachineAddress: r.MachineAddress,
			UUID:           r.Uuid,
			Error:          r.Error,
			Steps:          []common.StepRecord{},
			CreatedAt:      timeFromSql(r.CreatedAt),
			UpdatedAt:      timeFromSql(r.UpdatedAt),
		}
	}

	steps, err := lq.SelectStepsForRuns(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to select steps: %w", err)
	}
	for _, s := range steps {
		rec := &records[byID[s.RunID]]
		rec.Steps = append(rec.Steps, common.StepRecord{
			Step:     common.Step(s.Step),
			TxID:     s.TxID,
			Recorded: timeFromSql(s.RecordedAt),
		})
	}

	mints, err := lq.SelectMintsForRuns(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to select mints: %w", err)
	}
	for _, m := range mints {
		mint := mintFromSql(m)
		records[byID[m.RunID]].Mint = &mint
	}
	return records, nil
}

// Run returns the run with its steps and mint. Missing run gives
// common.ErrNotExists.
func (ldb *LaunchDB) Run(ctx context.Context, runID string) (*common.RunRecord, error) {
	defer ldb.trace("Run")()
	var record *common.RunRecord
	if err := ldb.runRetryableTransaction(ctx, func(innerCtx context.Context, lq *Queries) error {
		run, err := lq.SelectRun(innerCtx, runID)
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrNotExists
		} else if err != nil {
			return fmt.Errorf("failed to select run: %w", err)
		}
		records, err := fillRuns(innerCtx, lq, []LaunchRun{run})
		if err != nil {
			return err
		}
		record = &records[0]
		return nil
	}); err != nil {
		return nil, err
	}
	return record, nil
}

// History returns runs newest first.
func (ldb *LaunchDB) History(ctx context.Context, limit, offset int) ([]common.RunRecord, error) {
	defer ldb.trace("History")()
	if limit <= 0 || offset < 0 {
		return nil, fmt.Errorf("bad page: limit=%d offset=%d", limit, offset)
	}
	var records []common.RunRecord
	if err := ldb.runRetryableTransaction(ctx, func(innerCtx context.Context, lq *Queries) error {
		runs, err := lq.SelectRunsPage(innerCtx, SelectRunsPageParams{
			Limit:  int32(limit),
			Offset: int32(offset),
		})
		if err != nil {
			return fmt.Errorf("failed to select runs: %w", err)
		}
		records, err = fillRuns(innerCtx, lq, runs)
		return err
	}); err != nil {
		return nil, err
	}
	return records, nil
}

func (ldb *LaunchDB) Close() error {
	return ldb.db.Close()
}
