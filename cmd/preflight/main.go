// Command preflight checks every external dependency the verification
// worker needs before it is started: Postgres and the verification schema,
// Redis, the Temporal frontend and, when configured, the credential
// registry.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"

	"github.com/nabr/verification/internal/config"
	"github.com/nabr/verification/internal/store"
)

type check struct {
	Name string
	Run  func(ctx context.Context) error
}

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	var (
		cfg *config.Config
		err error
	)
	if cfgPath != "" {
		cfg, err = config.LoadConfig(cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config %s: %v\n", cfgPath, err)
			os.Exit(1)
		}
	} else {
		cfg = config.Default()
	}

	fmt.Println("Verification worker pre-flight")
	fmt.Println("------------------------------")

	checks := []check{
		{"Postgres", func(ctx context.Context) error { return checkPostgres(ctx, cfg) }},
		{"Redis", func(ctx context.Context) error { return checkRedis(ctx, cfg) }},
		{"Temporal", func(ctx context.Context) error { return checkTemporal(ctx, cfg) }},
		{"Credential registry", checkRegistry},
	}

	failed := 0
	for _, c := range checks {
		fmt.Printf("  %-22s ", c.Name)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.Run(ctx)
		cancel()
		switch {
		case err == errSkipped:
			fmt.Println("[SKIP]")
		case err != nil:
			failed++
			fmt.Println("[FAIL]")
			fmt.Printf("    %v\n", err)
		default:
			fmt.Println("[OK]")
		}
	}

	fmt.Println("------------------------------")
	if failed > 0 {
		fmt.Printf("%d check(s) failed\n", failed)
		os.Exit(1)
	}
	fmt.Println("All checks passed, worker is good to start")
}

var errSkipped = fmt.Errorf("skipped")

// checkPostgres verifies connectivity and that every verification table is
// in place.
func checkPostgres(ctx context.Context, cfg *config.Config) error {
	st, err := store.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	for _, table := range store.Tables() {
		if err := st.TableReady(ctx, table); err != nil {
			return err
		}
	}
	return nil
}

func checkRedis(ctx context.Context, cfg *config.Config) error {
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rc.Close()
	return rc.Ping(ctx).Err()
}

func checkTemporal(ctx context.Context, cfg *config.Config) error {
	tc, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return err
	}
	defer tc.Close()
	_, err = tc.CheckHealth(ctx, &client.CheckHealthRequest{})
	return err
}

// checkRegistry is a reachability probe only; authorization semantics are
// exercised by the verifier service at runtime.
func checkRegistry(ctx context.Context) error {
	url := os.Getenv("CREDENTIAL_REGISTRY_URL")
	if url == "" {
		return errSkipped
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("registry returned %d", resp.StatusCode)
	}
	return nil
}
