package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

const (
	// ShortUUIDLength is the length of the uuid the candy machine program
	// accepts.
	ShortUUIDLength = 6

	candyMachineSeed = "candy_machine"
	metadataSeed     = "metadata"
	editionSeed      = "edition"
)

// ShortUUID derives the machine uuid from a config address: the first six
// characters of its base58 form.
//
// Six base58 characters carry about 35 bits, so two configs may share a uuid.
// Machine addresses stay distinct because the config address is a seed too,
// but callers tracking machines by uuid must use CheckUUIDCollision.
func ShortUUID(config solana.PublicKey) string {
	return base58.Encode(config[:])[:ShortUUIDLength]
}

// CheckUUIDCollision fails with ErrUUIDCollision if uuid is one of known.
func CheckUUIDCollision(uuid string, known []string) error {
	for _, k := range known {
		if k == uuid {
			return fmt.Errorf("%w: %s", ErrUUIDCollision, uuid)
		}
	}
	return nil
}

// MachineAddress derives the candy machine address and its bump.
func MachineAddress(programs ProgramTable, config solana.PublicKey, uuid string) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress(
		[][]byte{[]byte(candyMachineSeed), config[:], []byte(uuid)},
		programs.CandyMachine,
	)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("cannot derive candy machine address: %w", err)
	}
	return addr, bump, nil
}

// MetadataAddress derives the token metadata account of a mint.
func MetadataAddress(programs ProgramTable, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(metadataSeed), programs.TokenMetadata[:], mint[:]},
		programs.TokenMetadata,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("cannot derive metadata address: %w", err)
	}
	return addr, nil
}

// MasterEditionAddress derives the master edition account of a mint.
func MasterEditionAddress(programs ProgramTable, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(metadataSeed), programs.TokenMetadata[:], mint[:], []byte(editionSeed)},
		programs.TokenMetadata,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("cannot derive master edition address: %w", err)
	}
	return addr, nil
}

// TokenWallet derives the associated token account of wallet for mint.
func TokenWallet(programs ProgramTable, wallet, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{wallet[:], programs.Token[:], mint[:]},
		programs.AssociatedTokenAccount,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("cannot find ata: %w", err)
	}
	return addr, nil
}
