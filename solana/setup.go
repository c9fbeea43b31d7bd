package solana

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"gitlab.com/scpcorp/candy-launcher/common"
)

// StepObserver is told about every finished setup step. sig is zero for
// steps that send nothing.
type StepObserver func(step common.Step, sig solana.Signature)

// SetupParams is the input of one launch.
type SetupParams struct {
	Manifest    *common.Manifest
	ManifestURI string
	Campaign    common.Campaign

	// Short uuids of machines created earlier.
	KnownUUIDs []string

	Observer StepObserver
}

// StepSignature is the transaction produced by one step.
type StepSignature struct {
	Step      common.Step
	Signature solana.Signature
}

// SetupResult is what a launch produced. Status is RunSkipped if the
// program interface was not found and nothing was sent.
type SetupResult struct {
	Status  common.RunStatus
	Config  solana.PublicKey
	Machine solana.PublicKey
	UUID    string
	Steps   []StepSignature
	Mint    solana.Signature
}

func (r *SetupResult) record(p SetupParams, step common.Step, sig solana.Signature) {
	r.Steps = append(r.Steps, StepSignature{Step: step, Signature: sig})
	if p.Observer != nil {
		p.Observer(step, sig)
	}
}

// Setup creates a candy machine holding the manifest and mints one NFT
// from it. Any failing step aborts the run. Once the config account may
// exist, the partial result is returned along with the error.
func (l *Launcher) Setup(ctx context.Context, p SetupParams) (*SetupResult, error) {
	if p.Manifest == nil {
		return nil, &common.ValidationError{Field: "manifest", Msg: "missing"}
	}
	if err := p.Manifest.Validate(); err != nil {
		return nil, err
	}
	line := ConfigLine{Name: p.Manifest.Name, URI: p.ManifestURI}
	if err := checkConfigLine(line); err != nil {
		return nil, err
	}
	if err := p.Campaign.Validate(); err != nil {
		return nil, err
	}

	res := &SetupResult{}

	program, err := l.Program(ctx)
	if errors.Is(err, ErrProgramNotFound) {
		l.log.Warn().Stringer("program", l.config.Programs.CandyMachine).Msg("program interface not found, nothing to do")
		res.Status = common.RunSkipped
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch program: %w", err)
	}
	res.record(p, common.StepFetchProgram, solana.Signature{})

	if l.config.TestNetwork {
		sig, err := l.Airdrop(ctx, l.config.AirdropLamports)
		if err != nil {
			return nil, fmt.Errorf("fund: %w", err)
		}
		res.record(p, common.StepFund, sig)
	}

	config, uuid, sig, err := l.createConfig(ctx, program, p)
	if err != nil {
		if config.IsZero() {
			return nil, fmt.Errorf("create config: %w", err)
		}
		// The allocation may exist even though its confirmation failed.
		res.Config, res.UUID = config, uuid
		return res, fmt.Errorf("create config: %w", err)
	}
	res.Config, res.UUID = config, uuid
	l.log.Info().Stringer("tx", sig).Stringer("config", config).Str("uuid", uuid).Msg("config initialized")
	res.record(p, common.StepCreateConfig, sig)

	sig, err = l.populateConfig(ctx, program, config, line)
	if err != nil {
		return res, fmt.Errorf("populate config: %w", err)
	}
	l.log.Info().Stringer("tx", sig).Msg("config lines added")
	res.record(p, common.StepPopulateConfig, sig)

	machine, bump, err := MachineAddress(l.config.Programs, config, uuid)
	if err != nil {
		return res, err
	}
	res.Machine = machine
	res.record(p, common.StepDeriveMachine, solana.Signature{})

	sig, err = l.initializeMachine(ctx, program, machine, bump, config, uuid, p.Campaign)
	if err != nil {
		return res, fmt.Errorf("initialize machine: %w", err)
	}
	l.log.Info().Stringer("tx", sig).Stringer("machine", machine).Msg("candy machine initialized")
	res.record(p, common.StepInitializeMachine, sig)

	sig, err = l.MintOne(ctx, program, machine, config)
	if !sig.IsZero() {
		res.Mint = sig
		res.record(p, common.StepMintOne, sig)
	}
	if err != nil {
		return res, err
	}

	res.Status = common.RunDone
	return res, nil
}

func (l *Launcher) createConfig(ctx context.Context, program *Program, p SetupParams) (solana.PublicKey, string, solana.Signature, error) {
	payer := l.key.PublicKey()

	configKey, err := l.newKey()
	if err != nil {
		return solana.PublicKey{}, "", solana.Signature{}, fmt.Errorf("cannot generate config key: %w", err)
	}
	config := configKey.PublicKey()
	uuid := ShortUUID(config)
	if err := CheckUUIDCollision(uuid, p.KnownUUIDs); err != nil {
		return solana.PublicKey{}, "", solana.Signature{}, err
	}

	creators := make([]configCreator, 0, len(p.Manifest.Properties.Creators))
	for _, c := range p.Manifest.Properties.Creators {
		addr, err := solana.PublicKeyFromBase58(c.Address)
		if err != nil {
			return solana.PublicKey{}, "", solana.Signature{}, fmt.Errorf("creator %s: %w", c.Address, err)
		}
		creators = append(creators, configCreator{Address: addr, Verified: true, Share: c.Share})
	}

	data := configData{
		UUID:                 uuid,
		Symbol:               p.Manifest.Symbol,
		SellerFeeBasisPoints: p.Manifest.SellerFeeBasisPoints,
		Creators:             creators,
		MaxSupply:            p.Campaign.MaxSupply,
		IsMutable:            p.Campaign.IsMutable,
		RetainAuthority:      p.Campaign.RetainAuthority,
		MaxNumberOfLines:     common.ConfigLines,
	}
	if err := checkConfigHeader(data); err != nil {
		return solana.PublicKey{}, "", solana.Signature{}, err
	}

	size := ConfigSize(common.ConfigLines)
	rent, err := l.cluster.MinimumBalanceForRentExemption(ctx, size)
	if err != nil {
		return solana.PublicKey{}, "", solana.Signature{}, fmt.Errorf("cannot get rent exemption: %w", err)
	}

	initialize, err := programInstruction(program, instructionInitializeConfig, map[string]solana.PublicKey{
		"config":        config,
		"authority":     payer,
		"payer":         payer,
		"systemProgram": solana.SystemProgramID,
		"rent":          solana.SysVarRentPubkey,
	}, nil, data)
	if err != nil {
		return solana.PublicKey{}, "", solana.Signature{}, err
	}

	sig, err := l.sendAndConfirm(ctx, []solana.Instruction{
		system.NewCreateAccountInstruction(rent, size, program.ID, payer, config).Build(),
		initialize,
	}, l.key, configKey)
	if err != nil {
		return config, uuid, sig, err
	}
	return config, uuid, sig, nil
}

func (l *Launcher) populateConfig(ctx context.Context, program *Program, config solana.PublicKey, line ConfigLine) (solana.Signature, error) {
	add, err := programInstruction(program, instructionAddConfigLines, map[string]solana.PublicKey{
		"config":    config,
		"authority": l.key.PublicKey(),
	}, nil, uint32(0), []ConfigLine{line})
	if err != nil {
		return solana.Signature{}, err
	}
	return l.sendAndConfirm(ctx, []solana.Instruction{add})
}

func (l *Launcher) initializeMachine(
	ctx context.Context,
	program *Program,
	machine solana.PublicKey,
	bump uint8,
	config solana.PublicKey,
	uuid string,
	campaign common.Campaign,
) (solana.Signature, error) {
	payer := l.key.PublicKey()
	goLive := l.now().Unix()

	initialize, err := programInstruction(program, instructionInitializeCandyMachine, map[string]solana.PublicKey{
		"candyMachine":  machine,
		"wallet":        payer,
		"config":        config,
		"authority":     payer,
		"payer":         payer,
		"systemProgram": solana.SystemProgramID,
		"rent":          solana.SysVarRentPubkey,
	}, nil, bump, candyMachineData{
		UUID:           uuid,
		Price:          campaign.Price,
		ItemsAvailable: campaign.ItemsAvailable,
		GoLiveDate:     &goLive,
	})
	if err != nil {
		return solana.Signature{}, err
	}
	return l.sendAndConfirm(ctx, []solana.Instruction{initialize})
}
