// In this example, the program drives a candy machine on the cluster named
// by SOLANA_CLUSTER (devnet by default). On test clusters a fresh key is
// generated when SOLANA_KEYGEN_FILE is not set.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gagliardetto/solana-go"

	"gitlab.com/scpcorp/candy-launcher/app"
	"gitlab.com/scpcorp/candy-launcher/common"
	"gitlab.com/scpcorp/candy-launcher/logging"
	candy "gitlab.com/scpcorp/candy-launcher/solana"
	"gitlab.com/scpcorp/candy-launcher/upload"
)

const (
	actionAirdrop   = "airdrop"
	actionTokenDemo = "token-demo"
	actionUpload    = "upload"
	actionLaunch    = "launch"
	actionMint      = "mint"
	actionMachine   = "machine"
)

var log = logging.WithComponent("candy-example")

func usage() {
	fmt.Println("Usage: go run ./cmd/candy-example <action> [<parameters>]")
	fmt.Println("Actions:")
	fmt.Println("  airdrop [<lamports>]")
	fmt.Println("  token-demo <recipient-address>")
	fmt.Println("  upload <image.png> <manifest.json>")
	fmt.Println("  launch <campaign.toml>")
	fmt.Println("  mint <machine-address>")
	fmt.Println("  machine <machine-address>")
	fmt.Println("Environment: SOLANA_CLUSTER, SOLANA_RPC_URL, SOLANA_WS_URL, SOLANA_KEYGEN_FILE, GCS_BUCKET, GCS_BASE_URL")
	os.Exit(1)
}

func args(n int) []string {
	if len(os.Args) < n+2 {
		usage()
	}
	return os.Args[2:]
}

func newLauncher(ctx context.Context) *candy.Launcher {
	cfg := app.Config{
		Cluster:          os.Getenv("SOLANA_CLUSTER"),
		RPCURL:           os.Getenv("SOLANA_RPC_URL"),
		WSURL:            os.Getenv("SOLANA_WS_URL"),
		SolanaKeygenFile: os.Getenv("SOLANA_KEYGEN_FILE"),
	}
	if cfg.Cluster == "" {
		cfg.Cluster = "devnet"
	}
	clusterConfig, err := cfg.ClusterConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Bad cluster")
	}

	var key solana.PrivateKey
	if clusterConfig.TestNetwork {
		key, err = candy.LoadOrGenerateKey(ctx, cfg.KeySource())
	} else {
		key, err = candy.LoadKey(ctx, cfg.KeySource())
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load key")
	}

	cluster, err := candy.Dial(ctx, clusterConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot connect")
	}
	l, err := candy.NewLauncher(clusterConfig, cluster, key)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot create launcher")
	}
	fmt.Printf("Wallet: %s (%s)\n", l.PublicKey(), clusterConfig.Cluster.Name)
	return l
}

func newBackend(ctx context.Context) upload.Backend {
	client, err := app.NewStorageClient(ctx, os.Getenv("GCS_CREDENTIALS_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot create storage client")
	}
	backend, err := upload.NewGCSBackend(client, os.Getenv("GCS_BUCKET"), os.Getenv("GCS_BASE_URL"))
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot create upload backend")
	}
	return backend
}

func parseAddress(s string) solana.PublicKey {
	addr, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		log.Fatal().Err(err).Str("address", s).Msg("Bad address")
	}
	return addr
}

func main() {
	logging.Init(os.Getenv("LOG_LEVEL"), false)
	log = logging.WithComponent("candy-example")

	if len(os.Args) < 2 {
		usage()
	}
	ctx := context.Background()

	switch os.Args[1] {
	case actionAirdrop:
		lamports := common.AirdropLamports
		if len(os.Args) > 2 {
			v, err := strconv.ParseUint(os.Args[2], 10, 64)
			if err != nil {
				log.Fatal().Err(err).Msg("Cannot parse lamports")
			}
			lamports = v
		}
		doAirdrop(ctx, newLauncher(ctx), lamports)
	case actionTokenDemo:
		a := args(1)
		doTokenDemo(ctx, newLauncher(ctx), parseAddress(a[0]))
	case actionUpload:
		a := args(2)
		doUpload(ctx, newBackend(ctx), a[0], a[1])
	case actionLaunch:
		a := args(1)
		doLaunch(ctx, a[0])
	case actionMint:
		a := args(1)
		doMint(ctx, newLauncher(ctx), parseAddress(a[0]))
	case actionMachine:
		a := args(1)
		printMachine(ctx, newLauncher(ctx), parseAddress(a[0]))
	default:
		log.Fatal().Str("action", os.Args[1]).Msg("Bad action")
	}
}

func doAirdrop(ctx context.Context, l *candy.Launcher, lamports uint64) {
	sig, err := l.Airdrop(ctx, lamports)
	if err != nil {
		log.Fatal().Err(err).Msg("Airdrop failed")
	}
	fmt.Printf("Airdrop: %s\n", sig)
}

func doTokenDemo(ctx context.Context, l *candy.Launcher, recipient solana.PublicKey) {
	if l.Config().TestNetwork {
		doAirdrop(ctx, l, common.AirdropLamports)
	}
	res, err := l.TokenDemo(ctx, recipient)
	if err != nil {
		log.Fatal().Err(err).Msg("Token demo failed")
	}
	fmt.Printf("Mint: %s\n", res.Mint)
	fmt.Printf("Mint transaction: %s\n", res.MintTx)
	fmt.Printf("Transfer %s -> %s: %s\n", res.FromAccount, res.ToAccount, res.TransferTx)
}

func uploadFiles(ctx context.Context, backend upload.Backend, imagePath string, manifest *common.Manifest) *upload.Result {
	image, err := os.ReadFile(imagePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot read image")
	}
	res, err := upload.UploadMetadata(ctx, backend, image, manifest)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}
	fmt.Printf("Image: %s\n", res.ImageURI)
	fmt.Printf("Manifest: %s\n", res.ManifestURI)
	return res
}

func doUpload(ctx context.Context, backend upload.Backend, imagePath, manifestPath string) {
	manifest, err := common.LoadManifest(manifestPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load manifest")
	}
	uploadFiles(ctx, backend, imagePath, manifest)
}

func doLaunch(ctx context.Context, campaignPath string) {
	campaign, err := common.LoadCampaign(campaignPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load campaign")
	}
	// Paths in the campaign file are relative to it.
	dir := filepath.Dir(campaignPath)
	manifest, err := common.LoadManifest(filepath.Join(dir, campaign.ManifestPath))
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load manifest")
	}

	manifestURI := campaign.ManifestURI
	if manifestURI == "" {
		res := uploadFiles(ctx, newBackend(ctx), filepath.Join(dir, campaign.ImagePath), manifest)
		manifestURI = res.ManifestURI
	}

	l := newLauncher(ctx)
	res, err := l.Setup(ctx, candy.SetupParams{
		Manifest:    manifest,
		ManifestURI: manifestURI,
		Campaign:    campaign,
		Observer: func(step common.Step, sig solana.Signature) {
			if sig.IsZero() {
				fmt.Printf("%s: done\n", step)
				return
			}
			fmt.Printf("%s: %s\n", step, sig)
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Launch failed")
	}
	fmt.Printf("Status: %s\n", res.Status)
	if res.Status == common.RunDone {
		fmt.Printf("Config: %s\n", res.Config)
		fmt.Printf("Machine: %s (uuid %s)\n", res.Machine, res.UUID)
		fmt.Printf("Mint: %s\n", res.Mint)
	}
}

func doMint(ctx context.Context, l *candy.Launcher, machine solana.PublicKey) {
	state, err := l.MachineState(ctx, machine)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot read machine")
	}
	program, err := l.Program(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot fetch program")
	}
	sig, err := l.MintOne(ctx, program, machine, state.Config)
	if !sig.IsZero() {
		fmt.Printf("Transaction: %s\n", sig)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Mint failed")
	}
	printMachine(ctx, l, machine)
}

func printMachine(ctx context.Context, l *candy.Launcher, machine solana.PublicKey) {
	state, err := l.MachineState(ctx, machine)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot read machine")
	}
	fmt.Printf("Machine: %+v\n", *state)
	lines, err := l.ConfigLines(ctx, state.Config)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot read config lines")
	}
	for i, line := range lines {
		fmt.Printf("  %d: %s %s\n", i, line.Name, line.URI)
	}
}
