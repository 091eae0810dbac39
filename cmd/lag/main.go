// Command lag prints the chain tip, the last indexed slot and the difference.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"solana-swap-indexer/internal/config"
	"solana-swap-indexer/internal/ingestion"
	"solana-swap-indexer/internal/solana"
	"solana-swap-indexer/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.toml", "Path to the TOML configuration file")
	asJSON := flag.Bool("json", false, "Print the result as JSON")
	timeout := flag.Duration("timeout", 10*time.Second, "Overall timeout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	p, err := query(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if err := render(os.Stdout, p, *asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func query(ctx context.Context, cfg *config.Config) (ingestion.Progress, error) {
	client := solana.NewHTTPClient(cfg.RPC.HTTPURL,
		solana.WithTimeout(cfg.RPC.Timeout.Duration),
		solana.WithMaxRetries(cfg.RPC.MaxRetries),
		solana.WithCommitment(cfg.RPC.Commitment),
	)
	latest, err := client.GetSlot(ctx)
	if err != nil {
		return ingestion.Progress{}, fmt.Errorf("get chain tip: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.DB.DSN, 1)
	if err != nil {
		return ingestion.Progress{}, err
	}
	defer pool.Close()

	return ingestion.ReadProgress(ctx, postgres.NewStore(pool), latest)
}

func render(w io.Writer, p ingestion.Progress, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}

	if _, err := fmt.Fprintf(w, "chain tip:    %d\n", p.LatestSlot); err != nil {
		return err
	}
	if p.LastIndexedSlot == nil {
		_, err := fmt.Fprintln(w, "last indexed: none\nlag:          n/a")
		return err
	}
	_, err := fmt.Fprintf(w, "last indexed: %d\nlag:          %d slots\n", *p.LastIndexedSlot, *p.Lag)
	return err
}
