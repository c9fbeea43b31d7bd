package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/starius/api2"
	"google.golang.org/api/option"

	launcher "gitlab.com/scpcorp/candy-launcher"
	"gitlab.com/scpcorp/candy-launcher/launchdb"
	"gitlab.com/scpcorp/candy-launcher/logging"
	candy "gitlab.com/scpcorp/candy-launcher/solana"
	"gitlab.com/scpcorp/candy-launcher/upload"
)

type Config struct {
	ApiAddr   string `short:"a" env:"API_ADDR" default:":9580" description:"host:port that the API server listens on"`
	DBCfgPath string `long:"launcher-db-cfg" env:"DB_CFG_PATH" description:"Path to ledger DB config"`

	Cluster string `long:"cluster" env:"SOLANA_CLUSTER" default:"devnet" choice:"devnet" choice:"testnet" choice:"mainnet-beta" choice:"localnet"`
	RPCURL  string `long:"rpc-url" env:"SOLANA_RPC_URL" description:"custom RPC endpoint"`
	WSURL   string `long:"ws-url" env:"SOLANA_WS_URL" description:"custom websocket endpoint"`

	SolanaKeygenFile string `long:"solana-keygen-file" env:"SOLANA_KEYGEN_FILE"`
	SolanaKeyBase58  string `long:"solana-key" env:"SOLANA_KEY"`
	SecretProject    string `long:"secret-project" env:"SECRET_PROJECT" description:"GCP project holding the signer key"`
	SecretID         string `long:"secret-id" env:"SECRET_ID"`

	Bucket         string `long:"bucket" env:"GCS_BUCKET" description:"bucket receiving images and manifests"`
	StorageBaseURL string `long:"storage-base-url" env:"GCS_BASE_URL" default:"https://storage.googleapis.com"`
	StorageKeyFile string `long:"storage-credentials" env:"GCS_CREDENTIALS_FILE"`

	MintTimeout       time.Duration `long:"mint-timeout" env:"MINT_TIMEOUT" default:"15s"`
	StepTimeout       time.Duration `long:"step-timeout" env:"STEP_TIMEOUT" default:"1m"`
	MintCheckInterval time.Duration `long:"mint-check-interval" env:"MINT_CHECK_INTERVAL" default:"30s"`
	MintDecayTime     time.Duration `long:"mint-decay-time" env:"MINT_DECAY_TIME" default:"3m"`

	LogLevel string `long:"log-level" env:"LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error"`
	LogJSON  bool   `long:"log-json" env:"LOG_JSON"`
}

func (c Config) KeySource() candy.KeySource {
	return candy.KeySource{
		KeygenFile:    c.SolanaKeygenFile,
		Base58:        c.SolanaKeyBase58,
		SecretProject: c.SecretProject,
		SecretID:      c.SecretID,
	}
}

// ClusterConfig resolves the cluster name and endpoint overrides.
func (c Config) ClusterConfig() (candy.ClusterConfig, error) {
	cc, err := candy.ConfigForCluster(c.Cluster)
	if err != nil {
		return cc, err
	}
	cc = cc.WithEndpoints(c.RPCURL, c.WSURL)
	if c.MintTimeout > 0 {
		cc.MintTimeout = c.MintTimeout
	}
	if c.StepTimeout > 0 {
		cc.StepTimeout = c.StepTimeout
	}
	return cc, nil
}

func LauncherSettingsFromConfig(c Config) *launcher.Settings {
	settings := launcher.DefaultSettings(c.Cluster)
	if c.MintCheckInterval > 0 {
		settings.MintCheckInterval = c.MintCheckInterval
	}
	if c.MintDecayTime > 0 {
		settings.MintDecayTime = c.MintDecayTime
	}
	return settings
}

// NewStorageClient opens a Cloud Storage client, from a credentials file if
// one is configured and from the environment otherwise.
func NewStorageClient(ctx context.Context, credentialsFile string) (*storage.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	return storage.NewClient(ctx, opts...)
}

type Launcher struct {
	server *http.Server

	closers []io.Closer
}

func New() *Launcher {
	return &Launcher{}
}

func NewRouter(srv launcher.Service) http.Handler {
	mux := http.NewServeMux()
	api2.BindRoutes(mux, launcher.GetRoutes(srv))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Mount("/", mux)
	return r
}

func (l *Launcher) Start(c Config) error {
	logging.Init(c.LogLevel, c.LogJSON)
	log := logging.WithComponent("app")
	ctx := context.Background()

	clusterConfig, err := c.ClusterConfig()
	if err != nil {
		return fmt.Errorf("failed to resolve cluster: %w", err)
	}
	key, err := candy.LoadKey(ctx, c.KeySource())
	if err != nil {
		return fmt.Errorf("failed to load signer key: %w", err)
	}
	cluster, err := candy.Dial(ctx, clusterConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.Cluster, err)
	}
	l.closers = append(l.closers, cluster)
	chain, err := candy.NewLauncher(clusterConfig, cluster, key)
	if err != nil {
		return fmt.Errorf("failed to create launcher: %w", err)
	}

	storageClient, err := NewStorageClient(ctx, c.StorageKeyFile)
	if err != nil {
		return fmt.Errorf("failed to create storage client: %w", err)
	}
	l.closers = append(l.closers, storageClient)
	backend, err := upload.NewGCSBackend(storageClient, c.Bucket, c.StorageBaseURL)
	if err != nil {
		return fmt.Errorf("failed to create upload backend: %w", err)
	}

	pg, err := launchdb.OpenPostgresWithRetries(ctx, c.DBCfgPath)
	if err != nil {
		return fmt.Errorf("failed to open postgres: %w", err)
	}
	ldb, err := launchdb.NewDB(pg)
	if err != nil {
		pg.Close()
		return fmt.Errorf("failed to initialize launchDB: %w", err)
	}
	l.closers = append(l.closers, ldb)

	srv, err := launcher.New(LauncherSettingsFromConfig(c), chain, backend, ldb)
	if err != nil {
		return fmt.Errorf("could not initialize server: %w", err)
	}
	l.closers = append(l.closers, srv)

	log.Info().Str("addr", c.ApiAddr).Stringer("signer", chain.PublicKey()).Str("cluster", c.Cluster).Msg("Listening")
	l.server = &http.Server{Addr: c.ApiAddr, Handler: NewRouter(srv)}

	go func() {
		if err := l.server.ListenAndServe(); err != nil {
			log.Error().Err(err).Msg("server.ListenAndServe failed")
		}
	}()

	return nil
}

func (l *Launcher) Close() {
	log := logging.WithComponent("app")
	if l.server != nil {
		if err := l.server.Close(); err != nil {
			log.Error().Err(err).Msg("server.Close failed")
		}
	}
	// Reverse order of creation.
	for i := len(l.closers) - 1; i >= 0; i-- {
		if err := l.closers[i].Close(); err != nil {
			log.Error().Err(err).Msg("Close failed")
		}
	}
	l.closers = nil
}
