package solana

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/rs/zerolog"

	"gitlab.com/scpcorp/candy-launcher/logging"
)

// Launcher signs and submits candy machine transactions with one key.
type Launcher struct {
	config  ClusterConfig
	cluster Cluster
	key     solana.PrivateKey
	log     zerolog.Logger

	// Overridden in tests.
	now    func() time.Time
	newKey func() (solana.PrivateKey, error)
}

func NewLauncher(config ClusterConfig, cluster Cluster, key solana.PrivateKey) (*Launcher, error) {
	if len(key) == 0 {
		return nil, ErrMissingCredential
	}
	return &Launcher{
		config:  config,
		cluster: cluster,
		key:     key,
		log:     logging.WithComponent("launcher").With().Str("cluster", config.Cluster.Name).Logger(),
		now:     time.Now,
		newKey:  solana.NewRandomPrivateKey,
	}, nil
}

// PublicKey returns the address of the acting identity.
func (l *Launcher) PublicKey() solana.PublicKey {
	return l.key.PublicKey()
}

// Config returns the cluster config the launcher was created with.
func (l *Launcher) Config() ClusterConfig {
	return l.config
}

// Program fetches the interface of the configured candy machine program.
func (l *Launcher) Program(ctx context.Context) (*Program, error) {
	return FetchProgram(ctx, l.cluster, l.config.Programs.CandyMachine)
}

// MachineState reads and decodes a candy machine.
func (l *Launcher) MachineState(ctx context.Context, machine solana.PublicKey) (*MachineState, error) {
	account, err := l.cluster.Account(ctx, machine)
	if err != nil {
		return nil, fmt.Errorf("cannot get candy machine %s: %w", machine, err)
	}
	return DecodeMachineState(account.Data)
}

// ConfigLines reads the populated lines of a config resource.
func (l *Launcher) ConfigLines(ctx context.Context, config solana.PublicKey) ([]ConfigLine, error) {
	account, err := l.cluster.Account(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("cannot get config %s: %w", config, err)
	}
	return DecodeConfigLines(account.Data)
}

// mintRequest is the ordered instruction list of one mint and its signers.
type mintRequest struct {
	instructions []solana.Instruction
	signers      []solana.PrivateKey
}

func (l *Launcher) buildMint(ctx context.Context, program *Program, machine, config solana.PublicKey) (*mintRequest, error) {
	payer := l.key.PublicKey()
	programs := l.config.Programs

	mintKey, err := l.newKey()
	if err != nil {
		return nil, fmt.Errorf("cannot generate mint key: %w", err)
	}
	mint := mintKey.PublicKey()

	userTokenAccount, err := TokenWallet(programs, payer, mint)
	if err != nil {
		return nil, err
	}

	state, err := l.MachineState(ctx, machine)
	if err != nil {
		return nil, err
	}

	rent, err := l.cluster.MinimumBalanceForRentExemption(ctx, token.MINT_SIZE)
	if err != nil {
		return nil, fmt.Errorf("cannot get rent exemption: %w", err)
	}

	instructions := []solana.Instruction{
		system.NewCreateAccountInstruction(rent, token.MINT_SIZE, programs.Token, payer, mint).Build(),
		token.NewInitializeMint2Instruction(0, payer, payer, mint).Build(),
		associatedtokenaccount.NewCreateInstruction(payer, payer, mint).Build(),
		token.NewMintToInstruction(1, mint, userTokenAccount, payer, nil).Build(),
	}

	var remaining []*solana.AccountMeta
	var paymentAccount solana.PublicKey
	if state.TokenMint != nil {
		transferAuthority, err := l.newKey()
		if err != nil {
			return nil, fmt.Errorf("cannot generate transfer authority: %w", err)
		}
		paymentAccount, err = TokenWallet(programs, payer, *state.TokenMint)
		if err != nil {
			return nil, err
		}
		remaining = []*solana.AccountMeta{
			solana.Meta(paymentAccount).WRITE(),
			solana.Meta(payer).SIGNER(),
		}
		instructions = append(instructions, token.NewApproveInstruction(
			state.Price, paymentAccount, transferAuthority.PublicKey(), payer, nil,
		).Build())
	}

	metadata, err := MetadataAddress(programs, mint)
	if err != nil {
		return nil, err
	}
	masterEdition, err := MasterEditionAddress(programs, mint)
	if err != nil {
		return nil, err
	}

	mintNft, err := programInstruction(program, instructionMintNft, map[string]solana.PublicKey{
		"config":               config,
		"candyMachine":         machine,
		"payer":                payer,
		"wallet":               state.Wallet,
		"metadata":             metadata,
		"mint":                 mint,
		"mintAuthority":        payer,
		"updateAuthority":      payer,
		"masterEdition":        masterEdition,
		"tokenMetadataProgram": programs.TokenMetadata,
		"tokenProgram":         programs.Token,
		"systemProgram":        solana.SystemProgramID,
		"rent":                 solana.SysVarRentPubkey,
		"clock":                solana.SysVarClockPubkey,
	}, remaining)
	if err != nil {
		return nil, err
	}
	instructions = append(instructions, mintNft)

	if state.TokenMint != nil {
		instructions = append(instructions, token.NewRevokeInstruction(paymentAccount, payer, nil).Build())
	}

	return &mintRequest{
		instructions: instructions,
		signers:      []solana.PrivateKey{mintKey, l.key},
	}, nil
}

// MintOne mints one NFT from the machine. Preflight is skipped; the outcome
// comes from the confirmation wait. A rejected transaction is returned as
// *MintError, a timeout wraps ErrTimeout. The signature is returned whenever
// the transaction was submitted.
func (l *Launcher) MintOne(ctx context.Context, program *Program, machine, config solana.PublicKey) (solana.Signature, error) {
	req, err := l.buildMint(ctx, program, machine, config)
	if err != nil {
		return solana.Signature{}, err
	}

	tx, err := l.signTx(ctx, req.instructions, req.signers...)
	if err != nil {
		return solana.Signature{}, err
	}

	sig, err := l.cluster.SendTransaction(ctx, tx, true)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("cannot send: %w", err)
	}
	l.log.Info().Stringer("tx", sig).Stringer("machine", machine).Msg("mint submitted")

	conf, err := AwaitConfirmation(ctx, l.cluster, sig, WaitOptions{
		Timeout:      l.config.MintTimeout,
		Poll:         true,
		PollInterval: l.config.PollInterval,
	})
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return sig, fmt.Errorf("mint %s: %w", sig, err)
		}
		return sig, &MintError{Signature: sig, Cause: err}
	}
	l.log.Info().Stringer("tx", sig).Uint64("slot", conf.Slot).Msg("mint confirmed")

	return sig, nil
}

// sendAndConfirm submits a transaction with preflight and waits for it.
func (l *Launcher) sendAndConfirm(ctx context.Context, instructions []solana.Instruction, signers ...solana.PrivateKey) (solana.Signature, error) {
	tx, err := l.signTx(ctx, instructions, signers...)
	if err != nil {
		return solana.Signature{}, err
	}

	sig, err := l.cluster.SendTransaction(ctx, tx, false)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("cannot send: %w", err)
	}

	_, err = AwaitConfirmation(ctx, l.cluster, sig, WaitOptions{
		Timeout:      l.config.StepTimeout,
		Poll:         true,
		PollInterval: l.config.PollInterval,
	})
	if err != nil {
		return sig, fmt.Errorf("cannot wait: %w", err)
	}

	return sig, nil
}

func (l *Launcher) signTx(ctx context.Context, instructions []solana.Instruction, signers ...solana.PrivateKey) (*solana.Transaction, error) {
	recent, err := l.cluster.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := solana.NewTransaction(
		instructions,
		recent,
		solana.TransactionPayer(l.key.PublicKey()),
	)
	if err != nil {
		return nil, fmt.Errorf("cannot create transaction: %w", err)
	}

	if len(signers) == 0 {
		signers = []solana.PrivateKey{l.key}
	}
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for i := range signers {
			if signers[i].PublicKey().Equals(key) {
				return &signers[i]
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cannot sign: %w", err)
	}
	return tx, nil
}
