package launchdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	_ "github.com/lib/pq" // this comment here because of linter: a blank import should be only in a main or test package, or have a comment justifying it (golint)

	"gitlab.com/scpcorp/candy-launcher/logging"
)

type config struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	DBName   string `toml:"dbname"`
	SSLMode  string `toml:"sslmode"`
}

func (cfg config) dsn() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.DBName,
		cfg.SSLMode,
	)
}

func OpenPostgres(configPath string) (*sql.DB, error) {
	var cfg config
	if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
		return nil, err
	}
	return sql.Open("postgres", cfg.dsn())
}

// OpenPostgresWithRetries blocks until the database answers a ping or ctx
// is done.
func OpenPostgresWithRetries(ctx context.Context, configPath string) (*sql.DB, error) {
	log := logging.WithComponent("launchdb")
	interval := time.Second * 5
	for {
		db, err := OpenPostgres(configPath)
		if err == nil {
			err = db.PingContext(ctx)
			if err == nil {
				return db, nil
			}
			db.Close()
			log.Warn().Err(err).Msg("Failed to ping Postgres")
		} else {
			log.Warn().Err(err).Msg("Failed to open Postgres")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}
