package solana

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"gitlab.com/scpcorp/candy-launcher/common"
)

const (
	maxNameLength = 32
	maxURILength  = 200

	// ConfigArrayStart is the offset of the line count in the config
	// resource, counted from the first byte of account data. The 8-byte
	// account discriminator is inside this span, not in front of it: the
	// program reserves these bytes for the serialized header and writes the
	// count and the lines at fixed raw offsets.
	ConfigArrayStart = 32 + // authority
		4 + 6 + // uuid + u32 len
		4 + common.MaxSymbolLength + // u32 len + symbol
		2 + // seller fee basis points
		1 + 4 + common.MaxCreators*34 + // optional + u32 len + creators
		8 + // max supply
		1 + // is mutable
		1 + // retain authority
		4 // max number of lines

	// ConfigLineSize is the fixed size of one config line.
	ConfigLineSize = 4 + maxNameLength + 4 + maxURILength

	// ConfigHeaderSize is the size of a config resource with no lines.
	ConfigHeaderSize = ConfigArrayStart + 4 + 4
)

// ConfigSize returns the number of bytes to allocate for a config resource
// holding n lines: the header, the lines and one availability bit per line.
func ConfigSize(n int) uint64 {
	if n < 0 {
		n = 0
	}
	return uint64(ConfigHeaderSize + n*ConfigLineSize + (n+7)/8)
}

// MachineState is the decoded candy machine resource.
type MachineState struct {
	Authority      solana.PublicKey  `json:"authority"`
	Wallet         solana.PublicKey  `json:"wallet"`
	TokenMint      *solana.PublicKey `json:"token_mint,omitempty"`
	Config         solana.PublicKey  `json:"config"`
	UUID           string            `json:"uuid"`
	Price          uint64            `json:"price"`
	ItemsAvailable uint64            `json:"items_available"`
	GoLiveDate     *int64            `json:"go_live_date,omitempty"`
	ItemsRedeemed  uint64            `json:"items_redeemed"`
	Bump           uint8             `json:"bump"`
}

type candyMachineAccount struct {
	Discriminator [8]byte
	Authority     solana.PublicKey
	Wallet        solana.PublicKey
	TokenMint     *solana.PublicKey `bin:"optional"`
	Config        solana.PublicKey
	Data          candyMachineData
	ItemsRedeemed uint64
	Bump          uint8
}

var candyMachineDiscriminator = bin.SighashAccount("CandyMachine")

// DecodeMachineState decodes the data of a candy machine account.
func DecodeMachineState(data []byte) (*MachineState, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], candyMachineDiscriminator) {
		return nil, fmt.Errorf("not a candy machine account")
	}
	var acc candyMachineAccount
	if err := bin.NewBorshDecoder(data).Decode(&acc); err != nil {
		return nil, fmt.Errorf("cannot decode candy machine: %w", err)
	}
	return &MachineState{
		Authority:      acc.Authority,
		Wallet:         acc.Wallet,
		TokenMint:      acc.TokenMint,
		Config:         acc.Config,
		UUID:           acc.Data.UUID,
		Price:          acc.Data.Price,
		ItemsAvailable: acc.Data.ItemsAvailable,
		GoLiveDate:     acc.Data.GoLiveDate,
		ItemsRedeemed:  acc.ItemsRedeemed,
		Bump:           acc.Bump,
	}, nil
}

// DecodeConfigLines returns the populated lines of a config resource.
// Names and URIs are stored padded with zero bytes; padding is removed.
func DecodeConfigLines(data []byte) ([]ConfigLine, error) {
	if len(data) < ConfigArrayStart+4 {
		return nil, fmt.Errorf("config account is too short: %d bytes", len(data))
	}
	count := int(binary.LittleEndian.Uint32(data[ConfigArrayStart:]))
	start := ConfigArrayStart + 4
	if room := (len(data) - start) / ConfigLineSize; count > room {
		return nil, fmt.Errorf("config declares %d lines, room for %d", count, room)
	}

	lines := make([]ConfigLine, 0, count)
	for i := 0; i < count; i++ {
		raw := data[start+i*ConfigLineSize : start+(i+1)*ConfigLineSize]
		name, rest, err := paddedString(raw, maxNameLength)
		if err != nil {
			return nil, fmt.Errorf("line %d name: %w", i, err)
		}
		uri, _, err := paddedString(rest, maxURILength)
		if err != nil {
			return nil, fmt.Errorf("line %d uri: %w", i, err)
		}
		lines = append(lines, ConfigLine{Name: name, URI: uri})
	}
	return lines, nil
}

func paddedString(raw []byte, size int) (string, []byte, error) {
	n := int(binary.LittleEndian.Uint32(raw))
	if n > size {
		return "", nil, fmt.Errorf("length %d exceeds %d", n, size)
	}
	value := bytes.TrimRight(raw[4:4+n], "\x00")
	return string(value), raw[4+size:], nil
}

// checkConfigHeader fails when the serialized config header would run into
// the line count. Long symbols with five creators do not fit.
func checkConfigHeader(data configData) error {
	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(data); err != nil {
		return fmt.Errorf("cannot encode config header: %w", err)
	}
	size := 8 + solana.PublicKeyLength + buf.Len() // discriminator + authority + data
	if size > ConfigArrayStart {
		return &common.ValidationError{
			Field: "properties.creators",
			Msg:   fmt.Sprintf("config header takes %d bytes, only %d fit; use fewer creators or a shorter symbol", size, ConfigArrayStart),
		}
	}
	return nil
}

func checkConfigLine(line ConfigLine) error {
	if line.Name == "" || len(line.Name) > maxNameLength {
		return &common.ValidationError{Field: "name", Msg: fmt.Sprintf("length must be 1..%d bytes, got %d", maxNameLength, len(line.Name))}
	}
	if line.URI == "" || len(line.URI) > maxURILength {
		return &common.ValidationError{Field: "uri", Msg: fmt.Sprintf("length must be 1..%d bytes, got %d", maxURILength, len(line.URI))}
	}
	return nil
}
