package solana

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

// TokenDemoResult describes a token created and moved by TokenDemo.
type TokenDemoResult struct {
	Mint        solana.PublicKey
	FromAccount solana.PublicKey
	ToAccount   solana.PublicKey
	MintTx      solana.Signature
	TransferTx  solana.Signature
}

// TokenDemo creates a zero decimal mint without freeze authority, mints one
// unit to the acting identity and transfers it to recipient.
func (l *Launcher) TokenDemo(ctx context.Context, recipient solana.PublicKey) (*TokenDemoResult, error) {
	payer := l.key.PublicKey()
	programs := l.config.Programs

	mintKey, err := l.newKey()
	if err != nil {
		return nil, fmt.Errorf("cannot generate mint key: %w", err)
	}
	mint := mintKey.PublicKey()

	from, err := TokenWallet(programs, payer, mint)
	if err != nil {
		return nil, err
	}
	to, err := TokenWallet(programs, recipient, mint)
	if err != nil {
		return nil, err
	}

	rent, err := l.cluster.MinimumBalanceForRentExemption(ctx, token.MINT_SIZE)
	if err != nil {
		return nil, fmt.Errorf("cannot get rent exemption: %w", err)
	}

	initMint, err := token.NewInitializeMint2InstructionBuilder().
		SetDecimals(0).
		SetMintAuthority(payer).
		SetMintAccount(mint).
		ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("cannot build mint initialization: %w", err)
	}

	mintTx, err := l.sendAndConfirm(ctx, []solana.Instruction{
		system.NewCreateAccountInstruction(rent, token.MINT_SIZE, programs.Token, payer, mint).Build(),
		initMint,
		associatedtokenaccount.NewCreateInstruction(payer, payer, mint).Build(),
		associatedtokenaccount.NewCreateInstruction(payer, recipient, mint).Build(),
		token.NewMintToInstruction(1, mint, from, payer, nil).Build(),
	}, l.key, mintKey)
	if err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}
	l.log.Info().Stringer("tx", mintTx).Stringer("mint", mint).Msg("token minted")

	transferTx, err := l.sendAndConfirm(ctx, []solana.Instruction{
		token.NewTransferInstruction(1, from, to, payer, nil).Build(),
	})
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	l.log.Info().Stringer("tx", transferTx).Stringer("to", recipient).Msg("token transferred")

	return &TokenDemoResult{
		Mint:        mint,
		FromAccount: from,
		ToAccount:   to,
		MintTx:      mintTx,
		TransferTx:  transferTx,
	}, nil
}
