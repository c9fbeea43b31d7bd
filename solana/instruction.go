package solana

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Candy machine instruction names as declared by the program interface.
const (
	instructionInitializeConfig       = "initializeConfig"
	instructionAddConfigLines         = "addConfigLines"
	instructionInitializeCandyMachine = "initializeCandyMachine"
	instructionMintNft                = "mintNft"
)

// Rust declaration order of instruction accounts. Used when the fetched
// interface does not list an instruction.
var defaultInstructionAccounts = map[string][]IdlAccount{
	instructionInitializeConfig: {
		{Name: "config", IsMut: true},
		{Name: "authority"},
		{Name: "payer", IsMut: true, IsSigner: true},
		{Name: "systemProgram"},
		{Name: "rent"},
	},
	instructionAddConfigLines: {
		{Name: "config", IsMut: true},
		{Name: "authority", IsSigner: true},
	},
	instructionInitializeCandyMachine: {
		{Name: "candyMachine", IsMut: true},
		{Name: "wallet"},
		{Name: "config"},
		{Name: "authority", IsSigner: true},
		{Name: "payer", IsMut: true, IsSigner: true},
		{Name: "systemProgram"},
		{Name: "rent"},
	},
	instructionMintNft: {
		{Name: "config"},
		{Name: "candyMachine", IsMut: true},
		{Name: "payer", IsMut: true, IsSigner: true},
		{Name: "wallet", IsMut: true},
		{Name: "metadata", IsMut: true},
		{Name: "mint", IsMut: true},
		{Name: "mintAuthority", IsSigner: true},
		{Name: "updateAuthority", IsSigner: true},
		{Name: "masterEdition", IsMut: true},
		{Name: "tokenMetadataProgram"},
		{Name: "tokenProgram"},
		{Name: "systemProgram"},
		{Name: "rent"},
		{Name: "clock"},
	},
}

type configCreator struct {
	Address  solana.PublicKey
	Verified bool
	Share    uint8
}

type configData struct {
	UUID                 string
	Symbol               string
	SellerFeeBasisPoints uint16
	Creators             []configCreator
	MaxSupply            uint64
	IsMutable            bool
	RetainAuthority      bool
	MaxNumberOfLines     uint32
}

// ConfigLine is one entry of the config resource.
type ConfigLine struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

type candyMachineData struct {
	UUID           string
	Price          uint64
	ItemsAvailable uint64
	GoLiveDate     *int64 `bin:"optional"`
}

// instructionData encodes an anchor instruction: the sighash of its name
// followed by borsh encoded arguments.
func instructionData(name string, args ...interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(bin.SighashInstruction(name))
	enc := bin.NewBorshEncoder(buf)
	for i, arg := range args {
		if err := enc.Encode(arg); err != nil {
			return nil, fmt.Errorf("cannot encode argument %d of %s: %w", i, name, err)
		}
	}
	return buf.Bytes(), nil
}

// programInstruction orders accounts the way the program expects them and
// appends remaining accounts.
func programInstruction(
	program *Program,
	name string,
	accounts map[string]solana.PublicKey,
	remaining []*solana.AccountMeta,
	args ...interface{},
) (solana.Instruction, error) {
	decl, err := program.instructionAccounts(name)
	if err != nil {
		return nil, err
	}

	metas := make(solana.AccountMetaSlice, 0, len(decl)+len(remaining))
	for _, a := range decl {
		addr, ok := accounts[a.Name]
		if !ok {
			return nil, fmt.Errorf("%s: account %q is not provided", name, a.Name)
		}
		metas = append(metas, &solana.AccountMeta{
			PublicKey:  addr,
			IsWritable: a.IsMut,
			IsSigner:   a.IsSigner,
		})
	}
	metas = append(metas, remaining...)

	data, err := instructionData(name, args...)
	if err != nil {
		return nil, err
	}

	return solana.NewInstruction(program.ID, metas, data), nil
}
