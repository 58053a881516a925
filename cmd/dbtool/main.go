package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"transit-tracking-service/internal/adapters/auth"
	"transit-tracking-service/internal/adapters/repositories"
	"transit-tracking-service/internal/config"
	"transit-tracking-service/internal/domain"
	"transit-tracking-service/internal/platform/obs"
)

const usage = `usage: dbtool <command> [flags]

commands:
  init                 create the schema of the configured SQL store
  seed [-path file]    load routes and vehicles from a JSON seed file
  token -subject s -role admin|driver [-vehicles V1,V2]
                       print a signed capability token`

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found (using environment variables)")
	}
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(obs.NewLogger(os.Stderr, cfg.LogLevel))

	ctx := context.Background()
	switch os.Args[1] {
	case "init":
		err = initSchema(ctx, cfg)
	case "seed":
		err = seed(ctx, cfg, os.Args[2:])
	case "token":
		err = token(cfg, os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error(os.Args[1]+" failed", "err", err)
		os.Exit(1)
	}
}

func initSchema(ctx context.Context, cfg config.Config) error {
	slog.Info("initializing schema", "driver", cfg.StoreDriver)
	backend, err := repositories.OpenBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	if _, err := backend.RequireSQL(); err != nil {
		return fmt.Errorf("init: driver %s: %w", cfg.StoreDriver, err)
	}
	slog.Info("schema ready")
	return nil
}

func seed(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	path := fs.String("path", cfg.SeedPath, "seed file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	backend, err := repositories.OpenBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	slog.Info("seeding", "driver", cfg.StoreDriver, "path", *path)
	if err := repositories.SeedFromJSON(ctx, backend.Repo, *path); err != nil {
		return err
	}
	slog.Info("seeding complete")
	return nil
}

func token(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "", "token subject (user id)")
	role := fs.String("role", string(domain.RoleDriver), "admin or driver")
	vehicles := fs.String("vehicles", "", "comma separated vehicle ids a driver may report for")
	if err := fs.Parse(args); err != nil {
		return err
	}

	authority, err := auth.NewJWTAuthority(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	p := domain.Principal{Subject: *subject, Role: domain.Role(*role)}
	for _, id := range strings.Split(*vehicles, ",") {
		if id = strings.TrimSpace(id); id != "" {
			p.VehicleIDs = append(p.VehicleIDs, id)
		}
	}

	signed, err := authority.Issue(p)
	if err != nil {
		return err
	}
	fmt.Println(signed)
	return nil
}
