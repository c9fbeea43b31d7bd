package solana

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/gagliardetto/solana-go"
	"github.com/klauspost/compress/zlib"
)

const idlSeed = "anchor:idl"

// IdlAccount is an account declared by an instruction of the program
// interface.
type IdlAccount struct {
	Name     string `json:"name"`
	IsMut    bool   `json:"isMut"`
	IsSigner bool   `json:"isSigner"`
}

type IdlField struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

type IdlInstruction struct {
	Name     string       `json:"name"`
	Accounts []IdlAccount `json:"accounts"`
	Args     []IdlField   `json:"args"`
}

// Idl is the interface definition an anchor program publishes on chain.
type Idl struct {
	Version      string           `json:"version"`
	Name         string           `json:"name"`
	Instructions []IdlInstruction `json:"instructions"`
}

// Program is a handle to a program with a known interface.
type Program struct {
	ID  solana.PublicKey
	Idl *Idl
}

// IdlAddress returns the address of the interface definition account of a
// program.
func IdlAddress(programID solana.PublicKey) (solana.PublicKey, error) {
	base, _, err := solana.FindProgramAddress([][]byte{}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("cannot derive idl base: %w", err)
	}
	addr, err := solana.CreateWithSeed(base, idlSeed, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("cannot derive idl address: %w", err)
	}
	return addr, nil
}

// FetchProgram reads the interface definition of the program from the
// cluster. It returns ErrProgramNotFound if there is none.
func FetchProgram(ctx context.Context, cluster Cluster, programID solana.PublicKey) (*Program, error) {
	addr, err := IdlAddress(programID)
	if err != nil {
		return nil, err
	}
	account, err := cluster.Account(ctx, addr)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrProgramNotFound
		}
		return nil, err
	}
	idl, err := decodeIdlAccount(account.Data)
	if err != nil {
		return nil, fmt.Errorf("idl of %s: %w", programID, err)
	}
	program := &Program{ID: programID, Idl: idl}
	for name := range defaultInstructionAccounts {
		if program.instruction(name) == nil {
			return nil, fmt.Errorf("idl of %s does not declare %s", programID, name)
		}
	}
	return program, nil
}

// decodeIdlAccount decodes discriminator, authority and the compressed
// definition.
func decodeIdlAccount(data []byte) (*Idl, error) {
	const headerLen = 8 + 32 + 4
	if len(data) < headerLen {
		return nil, fmt.Errorf("account is too short: %d bytes", len(data))
	}
	dataLen := binary.LittleEndian.Uint32(data[40:44])
	if uint64(len(data)-headerLen) < uint64(dataLen) {
		return nil, fmt.Errorf("data length %d exceeds account size", dataLen)
	}
	r, err := zlib.NewReader(bytes.NewReader(data[headerLen : headerLen+int(dataLen)]))
	if err != nil {
		return nil, fmt.Errorf("cannot inflate: %w", err)
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("cannot inflate: %w", err)
	}
	var idl Idl
	if err := json.Unmarshal(raw, &idl); err != nil {
		return nil, fmt.Errorf("cannot parse: %w", err)
	}
	return &idl, nil
}

func (p *Program) instruction(name string) *IdlInstruction {
	if p.Idl == nil {
		return nil
	}
	for i := range p.Idl.Instructions {
		if p.Idl.Instructions[i].Name == name {
			return &p.Idl.Instructions[i]
		}
	}
	return nil
}

func (p *Program) instructionAccounts(name string) ([]IdlAccount, error) {
	if in := p.instruction(name); in != nil {
		return in.Accounts, nil
	}
	accounts, ok := defaultInstructionAccounts[name]
	if !ok {
		return nil, fmt.Errorf("unknown instruction %s", name)
	}
	return accounts, nil
}
