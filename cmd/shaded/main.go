package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"shade/config"
	"shade/contract"
	cerrors "shade/core/errors"
	"shade/core/events"
	"shade/core/state"
	"shade/crypto"
	"shade/observability/logging"
	shadeotel "shade/observability/otel"
	"shade/rpc"
	"shade/storage"
)

const rpcTokenEnv = "SHADE_RPC_TOKEN"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("SHADE_ENV"))
	logger := logging.Setup("shaded", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.TelemetryEnabled {
		shutdown, err := shadeotel.Init(context.Background(), shadeotel.Config{
			ServiceName: "shaded",
			Environment: env,
			Endpoint:    cfg.OTLPEndpoint,
			Insecure:    cfg.OTLPInsecure,
			Metrics:     true,
			Traces:      true,
		})
		if err != nil {
			logger.Error("failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	if err := seedTokenDirectory(manager, cfg); err != nil {
		logger.Error("failed to seed token directory", slog.Any("error", err))
		os.Exit(1)
	}

	journal, err := events.OpenJournal(cfg.Journal(), logger)
	if err != nil {
		logger.Error("failed to open event journal", slog.Any("error", err))
		os.Exit(1)
	}
	defer journal.Close()

	shade := contract.New(manager, state.NewDirectory(manager), &codeSwapLogger{logger: logger})
	shade.SetEmitter(journal)

	if err := bootstrapAdmin(shade, cfg, logger); err != nil {
		logger.Error("failed to bootstrap admin", slog.Any("error", err))
		os.Exit(1)
	}

	authToken := strings.TrimSpace(os.Getenv(rpcTokenEnv))
	if authToken == "" {
		authToken = cfg.RPCToken
	}
	server := rpc.NewServer(shade, journal, authToken, logger)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("JSON-RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// seedTokenDirectory registers the configured external token contracts so the
// allow-list's symbol check has somewhere to look. Already-known tokens are
// left untouched.
func seedTokenDirectory(manager *state.Manager, cfg *config.Config) error {
	for _, entry := range cfg.Tokens {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(entry.Address))
		if err != nil {
			return fmt.Errorf("token %s: %w", entry.Symbol, err)
		}
		var token [20]byte
		copy(token[:], addr.Bytes())
		existing, err := manager.Token(token)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := manager.RegisterToken(token, entry.Symbol, entry.Name, entry.Decimals); err != nil {
			return err
		}
	}
	return manager.Commit()
}

// bootstrapAdmin initializes the contract from config on a fresh store. An
// already-initialized store is left untouched.
func bootstrapAdmin(shade contract.Shade, cfg *config.Config, logger *slog.Logger) error {
	adminStr := strings.TrimSpace(cfg.AdminAddress)
	if adminStr == "" {
		return nil
	}
	if _, err := shade.GetAdmin(); err == nil {
		return nil
	} else if !cerrors.Is(err, cerrors.ErrNotInitialized) {
		return err
	}
	addr, err := crypto.DecodeAddress(adminStr)
	if err != nil {
		return err
	}
	var admin [20]byte
	copy(admin[:], addr.Bytes())
	if err := shade.Initialize(admin); err != nil {
		return err
	}
	logger.Info("contract initialized", slog.String("admin", adminStr))
	return nil
}

// codeSwapLogger is the daemon's code store: the binary is rolled by ops
// tooling, so a swap request is surfaced to the operator and acknowledged.
type codeSwapLogger struct {
	logger *slog.Logger
}

func (c *codeSwapLogger) Swap(hash [32]byte) error {
	c.logger.Info("code image swap requested", slog.String("hash", fmt.Sprintf("%x", hash)))
	return nil
}
