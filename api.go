package launcher

//go:generate go run ./gen/...

import (
	"context"

	"gitlab.com/scpcorp/candy-launcher/common"
	candy "gitlab.com/scpcorp/candy-launcher/solana"
)

type Service interface {
	Launch(ctx context.Context, req *LaunchRequest) (*LaunchResponse, error)
	RunStatus(ctx context.Context, req *RunStatusRequest) (*RunStatusResponse, error)
	History(ctx context.Context, req *HistoryRequest) (*HistoryResponse, error)
	MachineState(ctx context.Context, req *MachineStateRequest) (*MachineStateResponse, error)
}

type LaunchRequest struct {
	// Campaign defaults to common.DefaultCampaign() when omitted.
	Campaign *common.Campaign `json:"campaign,omitempty"`
	Manifest *common.Manifest `json:"manifest"`

	// Image is uploaded together with the manifest unless ManifestURI
	// points at an already uploaded manifest.
	Image       []byte `json:"image,omitempty"`
	ManifestURI string `json:"manifest_uri,omitempty"`
}

type LaunchResponse struct {
	RunID string `json:"run_id"`
}

type RunStatusRequest struct {
	RunID string `json:"run_id"`
}

type RunStatusResponse struct {
	Run common.RunRecord `json:"run"`
}

type HistoryRequest struct {
	PageID string `json:"page_id"`
}

type HistoryResponse struct {
	Records    []common.RunRecord `json:"records"`
	NextPageID string             `json:"next_page_id"`
	More       bool               `json:"more"`
}

type MachineStateRequest struct {
	Machine string `json:"machine"`
}

type MachineStateResponse struct {
	State candy.MachineState `json:"state"`
	Lines []candy.ConfigLine `json:"lines"`
}

type Error struct {
	Msg string
}

func (err Error) Error() string {
	return err.Msg
}
