// Package main provides the entry point for the LDAP REST gateway. It
// initializes logging, parses configuration, and starts the HTTPS server,
// reacting to reload and shutdown signals for the rest of its life.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ldap-rest-gateway/internal/options"
	"ldap-rest-gateway/internal/reload"
	"ldap-rest-gateway/internal/version"
	"ldap-rest-gateway/internal/web"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().Msgf("LDAP REST gateway %s starting...", version.FormatVersion())

	opts, err := options.Parse()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse configuration")
	}
	log.Logger = log.Logger.Level(opts.LogLevel)

	app, keysMu, keys, tlsHandle, err := web.NewApp(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("could not initialize gateway")
	}

	reloadController := reload.New(keysMu, keys, opts.AuthorizedKeysPath, tlsHandle, opts.CertPath, opts.KeyPath)
	stopReload := reloadController.Run()
	defer stopReload()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)

	serverErr := make(chan error, 1)
	go func() {
		if err := app.Listen(addr, tlsHandle); err != nil {
			serverErr <- err
		}
	}()

	log.Info().Str("addr", addr).Msg("listening")

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-serverErr:
		log.Error().Err(err).Msg("server error")
	}

	log.Info().Msg("initiating graceful shutdown...")

	if err := app.Shutdown(opts.ShutdownTimeout); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
		os.Exit(1)
	}

	log.Info().Msg("graceful shutdown complete")
}
