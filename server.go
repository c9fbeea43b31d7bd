package launcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"gitlab.com/scpcorp/candy-launcher/common"
	"gitlab.com/scpcorp/candy-launcher/logging"
	candy "gitlab.com/scpcorp/candy-launcher/solana"
	"gitlab.com/scpcorp/candy-launcher/upload"
)

type launchJob struct {
	runID       string
	campaign    common.Campaign
	manifest    *common.Manifest
	image       []byte
	manifestURI string
}

type Server struct {
	settings *Settings
	chain    Chain
	backend  upload.Backend
	storage  Storage

	log zerolog.Logger
	now func() time.Time

	jobs chan launchJob

	cancel context.CancelFunc
	stopWg sync.WaitGroup // Close waits for this WaitGroup.
}

// New starts the launch worker and the mint reconcile loop.
func New(settings *Settings, chain Chain, backend upload.Backend, storage Storage) (*Server, error) {
	if settings.LaunchQueueSize <= 0 || settings.HistoryPageSize <= 0 || settings.MintCheckBatch <= 0 {
		return nil, fmt.Errorf("bad settings: %+v", *settings)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		settings: settings,
		chain:    chain,
		backend:  backend,
		storage:  storage,
		log:      logging.WithComponent("server"),
		now:      time.Now,
		jobs:     make(chan launchJob, settings.LaunchQueueSize),
		cancel:   cancel,
	}
	s.startWorker(ctx)
	s.runInALoop(ctx, "processPendingMints", settings.MintCheckInterval, s.processPendingMints)
	return s, nil
}

func (s *Server) Launch(ctx context.Context, req *LaunchRequest) (*LaunchResponse, error) {
	if req.Manifest == nil {
		return nil, Error{Msg: "manifest is missing"}
	}
	if err := req.Manifest.Validate(); err != nil {
		return nil, Error{Msg: err.Error()}
	}
	if req.ManifestURI == "" && len(req.Image) == 0 {
		return nil, Error{Msg: "either image or manifest_uri is required"}
	}
	campaign := common.DefaultCampaign()
	if req.Campaign != nil {
		campaign = *req.Campaign
	}
	if err := campaign.Validate(); err != nil {
		return nil, Error{Msg: err.Error()}
	}

	runID, err := s.storage.CreateRun(ctx, campaign.Name, s.settings.Cluster)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	job := launchJob{
		runID:       runID,
		campaign:    campaign,
		manifest:    req.Manifest,
		image:       req.Image,
		manifestURI: req.ManifestURI,
	}
	select {
	case s.jobs <- job:
	default:
		const msg = "launch queue is full"
		if err := s.storage.FinishRun(ctx, runID, common.RunFailed, msg); err != nil {
			s.log.Error().Err(err).Str("run", runID).Msg("failed to finish rejected run")
		}
		return nil, Error{Msg: msg}
	}
	s.log.Info().Str("run", runID).Str("campaign", campaign.Name).Msg("launch queued")
	return &LaunchResponse{RunID: runID}, nil
}

func (s *Server) RunStatus(ctx context.Context, req *RunStatusRequest) (*RunStatusResponse, error) {
	run, err := s.storage.Run(ctx, req.RunID)
	if errors.Is(err, common.ErrNotExists) {
		return nil, Error{Msg: fmt.Sprintf("run %q not found", req.RunID)}
	} else if err != nil {
		return nil, err
	}
	return &RunStatusResponse{Run: *run}, nil
}

// History pages through runs newest first. PageID is the offset of the
// page, empty for the first one.
func (s *Server) History(ctx context.Context, req *HistoryRequest) (*HistoryResponse, error) {
	offset := 0
	if req.PageID != "" {
		var err error
		offset, err = strconv.Atoi(req.PageID)
		if err != nil || offset < 0 {
			return nil, Error{Msg: fmt.Sprintf("bad page id %q", req.PageID)}
		}
	}
	pageSize := s.settings.HistoryPageSize
	records, err := s.storage.History(ctx, pageSize+1, offset)
	if err != nil {
		return nil, err
	}
	resp := &HistoryResponse{Records: records}
	if len(records) > pageSize {
		resp.Records = records[:pageSize]
		resp.More = true
		resp.NextPageID = strconv.Itoa(offset + pageSize)
	}
	return resp, nil
}

func (s *Server) MachineState(ctx context.Context, req *MachineStateRequest) (*MachineStateResponse, error) {
	machine, err := solana.PublicKeyFromBase58(req.Machine)
	if err != nil {
		return nil, Error{Msg: fmt.Sprintf("bad machine address: %v", err)}
	}
	state, err := s.chain.MachineState(ctx, machine)
	if errors.Is(err, candy.ErrAccountNotFound) {
		return nil, Error{Msg: fmt.Sprintf("machine %s not found", machine)}
	} else if err != nil {
		return nil, err
	}
	lines, err := s.chain.ConfigLines(ctx, state.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to read config lines: %w", err)
	}
	return &MachineStateResponse{State: *state, Lines: lines}, nil
}

// startWorker runs queued launches one at a time.
func (s *Server) startWorker(ctx context.Context) {
	s.stopWg.Add(1)
	go func() {
		defer s.stopWg.Done()
		for {
			select {
			case <-ctx.Done():
				s.log.Info().Msg("launch worker done by context")
				return
			case job := <-s.jobs:
				s.launch(ctx, job)
			}
		}
	}()
}

func (s *Server) recordStep(ctx context.Context, runID string, step common.Step, ref string) {
	if err := s.storage.AddStep(ctx, runID, step, ref); err != nil {
		s.log.Error().Err(err).Str("run", runID).Str("step", string(step)).Msg("failed to record step")
	}
}

func (s *Server) finish(ctx context.Context, runID string, status common.RunStatus, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := s.storage.FinishRun(ctx, runID, status, msg); err != nil {
		s.log.Error().Err(err).Str("run", runID).Msg("failed to finish run")
		return
	}
	ev := s.log.Info()
	if cause != nil {
		ev = s.log.Warn().Err(cause)
	}
	ev.Str("run", runID).Stringer("status", status).Msg("run finished")
}

func (s *Server) launch(ctx context.Context, job launchJob) {
	log := s.log.With().Str("run", job.runID).Logger()

	manifestURI := job.manifestURI
	if manifestURI == "" {
		res, err := upload.UploadMetadata(ctx, s.backend, job.image, job.manifest)
		if err != nil {
			s.finish(ctx, job.runID, common.RunFailed, err)
			return
		}
		s.recordStep(ctx, job.runID, common.StepUploadImage, res.ImageURI)
		s.recordStep(ctx, job.runID, common.StepUploadManifest, res.ManifestURI)
		manifestURI = res.ManifestURI
	}

	known, err := s.storage.KnownUUIDs(ctx)
	if err != nil {
		s.finish(ctx, job.runID, common.RunFailed, fmt.Errorf("failed to load known uuids: %w", err))
		return
	}

	res, setupErr := s.chain.Setup(ctx, candy.SetupParams{
		Manifest:    job.manifest,
		ManifestURI: manifestURI,
		Campaign:    job.campaign,
		KnownUUIDs:  known,
		Observer: func(step common.Step, sig solana.Signature) {
			ref := ""
			if !sig.IsZero() {
				ref = sig.String()
			}
			s.recordStep(ctx, job.runID, step, ref)
		},
	})
	if res != nil && !res.Config.IsZero() {
		if err := s.storage.SetAddresses(ctx, job.runID, res.Config.String(), res.Machine.String(), res.UUID); err != nil {
			log.Error().Err(err).Msg("failed to record addresses")
		}
	}
	if res != nil && !res.Mint.IsZero() {
		txID := common.SolanaTxID(res.Mint.String())
		if err := s.storage.SetMint(ctx, job.runID, txID); err != nil {
			log.Error().Err(err).Msg("failed to record mint")
		}
		var mintErr *candy.MintError
		if errors.As(setupErr, &mintErr) {
			if err := s.storage.SetMintStatus(ctx, txID, common.MintFailed, 0); err != nil {
				log.Error().Err(err).Msg("failed to record mint status")
			}
		}
		if errors.Is(setupErr, candy.ErrTimeout) {
			// The run stays running; processPendingMints finishes it.
			log.Warn().Err(setupErr).Str("tx", string(txID)).Msg("mint outcome unknown, left to reconcile")
			return
		}
	}
	if setupErr != nil {
		s.finish(ctx, job.runID, common.RunFailed, setupErr)
		return
	}
	s.finish(ctx, job.runID, res.Status, nil)
}

func (s *Server) Close() error {
	s.cancel()
	s.stopWg.Wait()
	return nil
}
