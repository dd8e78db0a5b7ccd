package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"flowdistributor/internal/config"
	"flowdistributor/internal/docstore/backend"
	"flowdistributor/internal/verify"
)

type options struct {
	backend     string
	root        string
	configFile  string
	project     string
	credentials string
	dbURL       string
	snapshot    string
	timeout     time.Duration
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, "verify:", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	file, err := config.LoadFile(opts.configFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	store, closer, err := backend.Open(ctx, backend.Options{
		Backend:              opts.backend,
		DatabaseURL:          opts.dbURL,
		FirestoreProject:     opts.project,
		FirestoreCredentials: opts.credentials,
		SnapshotFile:         opts.snapshot,
	}, log.New(io.Discard, "", 0))
	if err != nil {
		return err
	}
	defer closer()

	report, err := verify.Run(ctx, store, file.Collections(), time.Now())
	if err != nil {
		return err
	}
	path, err := verify.WriteFile(opts.root, report)
	if err != nil {
		return err
	}
	verify.Print(os.Stdout, report)
	fmt.Printf("Reporte guardado en %s\n", path)
	return nil
}

func parseFlags() (options, error) {
	var opts options
	flag.StringVar(&opts.backend, "backend", getenvDefault("FLOW_BACKEND", backend.Firestore), "document store: firestore, postgres or memory")
	flag.StringVar(&opts.root, "root", ".", "directory receiving "+verify.ReportFile)
	flag.StringVar(&opts.configFile, "config", os.Getenv("FLOW_CONFIG"), "YAML account configuration (optional)")
	flag.StringVar(&opts.project, "project", os.Getenv("FLOW_FIRESTORE_PROJECT"), "Firestore project id")
	flag.StringVar(&opts.credentials, "credentials", os.Getenv("FLOW_FIRESTORE_CREDENTIALS"), "service account JSON (optional)")
	flag.StringVar(&opts.dbURL, "db", os.Getenv("FLOW_DATABASE_URL"), "Postgres DSN")
	flag.StringVar(&opts.snapshot, "snapshot", os.Getenv("FLOW_SNAPSHOT_FILE"), "JSON snapshot for the memory backend")
	flag.DurationVar(&opts.timeout, "timeout", time.Minute, "overall timeout")
	flag.Parse()

	switch opts.backend {
	case backend.Firestore:
		if opts.project == "" {
			return opts, errors.New("missing --project or FLOW_FIRESTORE_PROJECT")
		}
	case backend.Postgres:
		if opts.dbURL == "" {
			return opts, errors.New("missing --db or FLOW_DATABASE_URL")
		}
	case backend.Memory:
		if opts.snapshot == "" {
			return opts, errors.New("missing --snapshot or FLOW_SNAPSHOT_FILE")
		}
	default:
		return opts, fmt.Errorf("unknown backend %q", opts.backend)
	}
	return opts, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
