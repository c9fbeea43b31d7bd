package main

import (
	"os"
	"os/signal"
	"syscall"

	goflags "github.com/jessevdk/go-flags"

	"gitlab.com/scpcorp/candy-launcher/app"
	"gitlab.com/scpcorp/candy-launcher/logging"
)

func parse(config interface{}) {
	errWrongCommand := 2

	_, err := goflags.Parse(config)
	if err != nil {
		if err, ok := err.(*goflags.Error); ok && err.Type == goflags.ErrHelp {
			os.Exit(errWrongCommand)
		}
		logging.Logger.Fatal().Err(err).Msg("Error during flags parsing")
	}
}

func waitForShutdown(f func()) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	s, ok := <-c
	if !ok {
		return
	}
	logging.Logger.Info().Stringer("signal", s).Msg("Got signal")

	f()
}

func main() {
	var config app.Config
	parse(&config)

	a := app.New()
	if err := a.Start(config); err != nil {
		logging.Logger.Error().Err(err).Msg("Failed to start launcher application")
		os.Exit(1)
	}

	waitForShutdown(a.Close)
}
