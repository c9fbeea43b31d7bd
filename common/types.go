package common

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mr-tron/base58"
)

var ErrNotExists = errors.New("not exists")

const SolanaAddrLen = 32

type SolanaAddress [SolanaAddrLen]byte

func SolanaAddressFromString(addrStr string) (addr SolanaAddress, err error) {
	val, err := base58.Decode(addrStr)
	if err != nil {
		return addr, fmt.Errorf("decode: %w", err)
	}
	if len(val) != SolanaAddrLen {
		return addr, fmt.Errorf("invalid length, expected %v, got %d", SolanaAddrLen, len(val))
	}
	copy(addr[:], val)
	return
}

func (addr SolanaAddress) String() string {
	return base58.Encode(addr[:])
}

type SolanaTxID string

type RunStatus int

const (
	RunRunning RunStatus = iota
	RunDone
	RunSkipped // Program interface was not found, nothing was sent.
	RunFailed

	RunStatusCount
)

func (s RunStatus) String() string {
	switch s {
	case RunRunning:
		return "running"
	case RunDone:
		return "done"
	case RunSkipped:
		return "skipped"
	case RunFailed:
		return "failed"
	default:
		return fmt.Sprintf("RunStatus(%d)", int(s))
	}
}

type MintStatus int

const (
	MintPending MintStatus = iota
	MintConfirmed
	MintFailed

	MintStatusCount
)

func (s MintStatus) String() string {
	switch s {
	case MintPending:
		return "pending"
	case MintConfirmed:
		return "confirmed"
	case MintFailed:
		return "failed"
	default:
		return fmt.Sprintf("MintStatus(%d)", int(s))
	}
}

// Step names one transition of the setup state machine.
type Step string

const (
	StepFetchProgram      Step = "fetch_program"
	StepFund              Step = "fund"
	StepCreateConfig      Step = "create_config"
	StepPopulateConfig    Step = "populate_config"
	StepDeriveMachine     Step = "derive_machine_address"
	StepInitializeMachine Step = "initialize_machine"
	StepMintOne           Step = "mint_one"
	StepUploadImage       Step = "upload_image"
	StepUploadManifest    Step = "upload_manifest"
)

type StepRecord struct {
	Step     Step      `json:"step"`
	TxID     string    `json:"tx_id"`
	Recorded time.Time `json:"recorded"`
}

type MintRecord struct {
	TxID      SolanaTxID `json:"tx_id"`
	RunID     string     `json:"run_id"`
	Status    MintStatus `json:"status"`
	Slot      uint64     `json:"slot"`
	CheckedAt time.Time  `json:"checked_at"`
}

type RunRecord struct {
	ID             string       `json:"id"`
	Campaign       string       `json:"campaign"`
	Cluster        string       `json:"cluster"`
	Status         RunStatus    `json:"status"`
	ConfigAddress  string       `json:"config_address,omitempty"`
	MachineAddress string       `json:"machine_address,omitempty"`
	UUID           string       `json:"uuid,omitempty"`
	Error          string       `json:"error,omitempty"`
	Steps          []StepRecord `json:"steps"`
	Mint           *MintRecord  `json:"mint,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Campaign is the literal configuration of one launch.
type Campaign struct {
	Name            string `toml:"name" json:"name"`
	ManifestPath    string `toml:"manifest" json:"manifest"`
	ImagePath       string `toml:"image" json:"image"`
	ManifestURI     string `toml:"manifest_uri" json:"manifest_uri,omitempty"` // Skips upload when set.
	Price           uint64 `toml:"price" json:"price"`
	ItemsAvailable  uint64 `toml:"items_available" json:"items_available"`
	MaxSupply       uint64 `toml:"max_supply" json:"max_supply"`
	IsMutable       bool   `toml:"is_mutable" json:"is_mutable"`
	RetainAuthority bool   `toml:"retain_authority" json:"retain_authority"`
}

// DefaultCampaign mirrors the values every launch used so far.
func DefaultCampaign() Campaign {
	return Campaign{
		Name:            "campaign",
		Price:           PlaceholderPrice,
		ItemsAvailable:  1,
		MaxSupply:       0,
		IsMutable:       true,
		RetainAuthority: true,
	}
}

type campaignFile struct {
	Campaign Campaign `toml:"campaign"`
}

// LoadCampaign reads a [campaign] table from a TOML file on top of the
// defaults.
func LoadCampaign(path string) (Campaign, error) {
	cf := campaignFile{Campaign: DefaultCampaign()}
	if _, err := toml.DecodeFile(path, &cf); err != nil {
		return Campaign{}, fmt.Errorf("decode campaign %s: %w", path, err)
	}
	if err := cf.Campaign.Validate(); err != nil {
		return Campaign{}, err
	}
	return cf.Campaign, nil
}

// Validate checks that the campaign fits in one config resource: the machine
// can not offer more items than the config has lines.
func (c Campaign) Validate() error {
	if c.ItemsAvailable == 0 {
		return invalid("campaign.items_available", "zero")
	}
	if c.ItemsAvailable > ConfigLines {
		return invalid("campaign.items_available", "%d exceeds the %d config lines", c.ItemsAvailable, ConfigLines)
	}
	return nil
}
