package launchdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{
		db: tx,
	}
}

type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusDone    RunStatus = "done"
	RunStatusSkipped RunStatus = "skipped"
	RunStatusFailed  RunStatus = "failed"
)

func (e *RunStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = RunStatus(s)
	case string:
		*e = RunStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for RunStatus: %T", src)
	}
	return nil
}

type MintStatus string

const (
	MintStatusPending   MintStatus = "pending"
	MintStatusConfirmed MintStatus = "confirmed"
	MintStatusFailed    MintStatus = "failed"
)

func (e *MintStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = MintStatus(s)
	case string:
		*e = MintStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for MintStatus: %T", src)
	}
	return nil
}

type LaunchRun struct {
	ID             string
	Campaign       string
	Cluster        string
	Status         RunStatus
	ConfigAddress  string
	MachineAddress string
	Uuid           string
	Error          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type LaunchStep struct {
	RunID      string
	Step       string
	TxID       string
	RecordedAt time.Time
}

type LaunchMint struct {
	TxID      string
	RunID     string
	Status    MintStatus
	Slot      int64
	CheckedAt time.Time
}

const runColumns = `id, campaign, cluster, status, config_address, machine_address, uuid, error, created_at, updated_at`

func scanRun(row interface{ Scan(...interface{}) error }) (LaunchRun, error) {
	var i LaunchRun
	err := row.Scan(
		&i.ID,
		&i.Campaign,
		&i.Cluster,
		&i.Status,
		&i.ConfigAddress,
		&i.MachineAddress,
		&i.Uuid,
		&i.Error,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const insertRun = `
INSERT INTO launch_runs (id, campaign, cluster, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
`

type InsertRunParams struct {
	ID        string
	Campaign  string
	Cluster   string
	Status    RunStatus
	CreatedAt time.Time
}

func (q *Queries) InsertRun(ctx context.Context, arg InsertRunParams) error {
	_, err := q.db.ExecContext(ctx, insertRun,
		arg.ID,
		arg.Campaign,
		arg.Cluster,
		arg.Status,
		arg.CreatedAt,
	)
	return err
}

const updateRunAddresses = `
UPDATE launch_runs
SET config_address = $2, machine_address = $3, uuid = $4, updated_at = $5
WHERE id = $1
`

type UpdateRunAddressesParams struct {
	ID             string
	ConfigAddress  string
	MachineAddress string
	Uuid           string
	UpdatedAt      time.Time
}

func (q *Queries) UpdateRunAddresses(ctx context.Context, arg UpdateRunAddressesParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateRunAddresses,
		arg.ID,
		arg.ConfigAddress,
		arg.MachineAddress,
		arg.Uuid,
		arg.UpdatedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const updateRunStatus = `
UPDATE launch_runs
SET status = $2, error = $3, updated_at = $4
WHERE id = $1
`

type UpdateRunStatusParams struct {
	ID        string
	Status    RunStatus
	Error     string
	UpdatedAt time.Time
}

func (q *Queries) UpdateRunStatus(ctx context.Context, arg UpdateRunStatusParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateRunStatus,
		arg.ID,
		arg.Status,
		arg.Error,
		arg.UpdatedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const selectRun = `
SELECT ` + runColumns + ` FROM launch_runs
WHERE id = $1
`

func (q *Queries) SelectRun(ctx context.Context, id string) (LaunchRun, error) {
	row := q.db.QueryRowContext(ctx, selectRun, id)
	return scanRun(row)
}

const selectRunsPage = `
SELECT ` + runColumns + ` FROM launch_runs
ORDER BY created_at DESC, id
LIMIT $1 OFFSET $2
`

type SelectRunsPageParams struct {
	Limit  int32
	Offset int32
}

func (q *Queries) SelectRunsPage(ctx context.Context, arg SelectRunsPageParams) ([]LaunchRun, error) {
	rows, err := q.db.QueryContext(ctx, selectRunsPage, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LaunchRun
	for rows.Next() {
		i, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const selectKnownUUIDs = `
SELECT uuid FROM launch_runs
WHERE uuid <> ''
`

func (q *Queries) SelectKnownUUIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, selectKnownUUIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var uuid string
		if err := rows.Scan(&uuid); err != nil {
			return nil, err
		}
		items = append(items, uuid)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertStep = `
INSERT INTO launch_steps (run_id, step, tx_id, recorded_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (run_id, step) DO UPDATE
SET tx_id = EXCLUDED.tx_id, recorded_at = EXCLUDED.recorded_at
`

type UpsertStepParams struct {
	RunID      string
	Step       string
	TxID       string
	RecordedAt time.Time
}

func (q *Queries) UpsertStep(ctx context.Context, arg UpsertStepParams) error {
	_, err := q.db.ExecContext(ctx, upsertStep,
		arg.RunID,
		arg.Step,
		arg.TxID,
		arg.RecordedAt,
	)
	return err
}

const selectStepsForRuns = `
SELECT run_id, step, tx_id, recorded_at FROM launch_steps
WHERE run_id = ANY($1::TEXT[])
ORDER BY recorded_at, step
`

func (q *Queries) SelectStepsForRuns(ctx context.Context, runIDs []string) ([]LaunchStep, error) {
	rows, err := q.db.QueryContext(ctx, selectStepsForRuns, pq.Array(runIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LaunchStep
	for rows.Next() {
		var i LaunchStep
		if err := rows.Scan(
			&i.RunID,
			&i.Step,
			&i.TxID,
			&i.RecordedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertMint = `
INSERT INTO launch_mints (tx_id, run_id, status, checked_at)
VALUES ($1, $2, $3, $4)
`

type InsertMintParams struct {
	TxID      string
	RunID     string
	Status    MintStatus
	CheckedAt time.Time
}

func (q *Queries) InsertMint(ctx context.Context, arg InsertMintParams) error {
	_, err := q.db.ExecContext(ctx, insertMint,
		arg.TxID,
		arg.RunID,
		arg.Status,
		arg.CheckedAt,
	)
	return err
}

const mintColumns = `tx_id, run_id, status, slot, checked_at`

func scanMints(rows *sql.Rows) ([]LaunchMint, error) {
	defer rows.Close()
	var items []LaunchMint
	for rows.Next() {
		var i LaunchMint
		if err := rows.Scan(
			&i.TxID,
			&i.RunID,
			&i.Status,
			&i.Slot,
			&i.CheckedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const selectMintsForRuns = `
SELECT ` + mintColumns + ` FROM launch_mints
WHERE run_id = ANY($1::TEXT[])
`

func (q *Queries) SelectMintsForRuns(ctx context.Context, runIDs []string) ([]LaunchMint, error) {
	rows, err := q.db.QueryContext(ctx, selectMintsForRuns, pq.Array(runIDs))
	if err != nil {
		return nil, err
	}
	return scanMints(rows)
}

const selectPendingMints = `
SELECT ` + mintColumns + ` FROM launch_mints
WHERE status = 'pending'
ORDER BY checked_at
LIMIT $1
`

func (q *Queries) SelectPendingMints(ctx context.Context, limit int32) ([]LaunchMint, error) {
	rows, err := q.db.QueryContext(ctx, selectPendingMints, limit)
	if err != nil {
		return nil, err
	}
	return scanMints(rows)
}

const updateMintStatus = `
UPDATE launch_mints
SET status = $2, slot = $3, checked_at = $4
WHERE tx_id = $1
`

type UpdateMintStatusParams struct {
	TxID      string
	Status    MintStatus
	Slot      int64
	CheckedAt time.Time
}

func (q *Queries) UpdateMintStatus(ctx context.Context, arg UpdateMintStatusParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateMintStatus,
		arg.TxID,
		arg.Status,
		arg.Slot,
		arg.CheckedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
