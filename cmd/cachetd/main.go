package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"cachet/internal/auth"
	"cachet/internal/server"
	"cachet/internal/store"
)

var (
	addr     string
	dbPath   string
	secret   string
	tokenTTL time.Duration
	verbose  bool
)

func main() {
	root := &cobra.Command{
		Use:          "cachetd",
		Short:        "End-to-end encrypted messaging relay server",
		SilenceUsage: true,
		RunE:         run,
	}
	root.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	root.Flags().StringVar(&dbPath, "db", "cachet.db", "bbolt database file")
	root.Flags().StringVar(&secret, "secret", "", "token signing secret (or CACHET_SECRET)")
	root.Flags().DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "bearer token lifetime")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := logrus.New()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if secret == "" {
		secret = os.Getenv("CACHET_SECRET")
	}
	if secret == "" {
		return errors.New("a token signing secret is required (--secret or CACHET_SECRET)")
	}

	db, err := store.OpenBolt(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	authority := auth.NewAuthority([]byte(secret), tokenTTL)
	srv := server.New(db, db, authority, log)

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "db": dbPath}).Info("relay listening")
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}
