// Command gatewayd runs the MCP gateway: HTTP/WebSocket API, agent-graph
// execution, and the Postgres LISTEN/NOTIFY fan-out that keeps replicas of
// this process in sync.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tarsy-labs/agentgw/pkg/agentcache"
	"github.com/tarsy-labs/agentgw/pkg/api"
	"github.com/tarsy-labs/agentgw/pkg/approval"
	"github.com/tarsy-labs/agentgw/pkg/checkpoint"
	"github.com/tarsy-labs/agentgw/pkg/database"
	"github.com/tarsy-labs/agentgw/pkg/eventstream"
	"github.com/tarsy-labs/agentgw/pkg/llm"
	"github.com/tarsy-labs/agentgw/pkg/oauthcreds"
	"github.com/tarsy-labs/agentgw/pkg/permission"
	"github.com/tarsy-labs/agentgw/pkg/streamregistry"
	"github.com/tarsy-labs/agentgw/pkg/toolfactory"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to directory holding the .env file")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("no .env file loaded, using existing environment", "path", envPath, "error", err)
	} else {
		slog.Info("loaded environment file", "path", envPath)
	}

	httpAddr := ":" + getEnv("HTTP_PORT", "8080")
	podName := getEnv("POD_NAME", hostnameOrDefault())
	llmAddr := getEnv("LLM_SIDECAR_ADDR", "localhost:50051")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting gatewayd", "pod", podName, "http_addr", httpAddr, "llm_addr", llmAddr)

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("error closing database client", "error", err)
		}
	}()
	slog.Info("connected to postgres, schema migrated")

	llmClient, err := llm.NewClient(llmAddr)
	if err != nil {
		slog.Error("failed to dial LLM sidecar", "error", err)
		os.Exit(1)
	}

	permissions := permission.NewStore(dbClient.Client)
	pending := permission.NewPendingRegistry()
	approvals := approval.New(pending, permissions)
	checkpoints := checkpoint.NewStore(dbClient.Client)
	catalogs := agentcache.New[*toolfactory.Catalog]()
	streams := streamregistry.New(podName)
	oauthDiscoverer := oauthcreds.NewDiscoverer()
	tokenManager := oauthcreds.NewTokenManager()

	messageStore := eventstream.NewEntMessageStore(dbClient.Client)
	connManager := eventstream.NewConnectionManager(eventstream.NewMessageStoreAdapter(messageStore))
	publisher := eventstream.NewEventPublisher(dbClient.DB())

	listenerConnString, err := notifyConnString(dbConfig)
	if err != nil {
		slog.Error("failed to build LISTEN/NOTIFY connection string", "error", err)
		os.Exit(1)
	}
	listener := eventstream.NewNotifyListener(listenerConnString, connManager)
	connManager.SetListener(listener)
	if err := listener.Start(ctx); err != nil {
		slog.Error("failed to start NOTIFY listener", "error", err)
		os.Exit(1)
	}
	defer listener.Stop(context.Background())

	server := api.NewServer(api.Deps{
		DBClient:        dbClient,
		EntClient:       dbClient.Client,
		OAuthDiscoverer: oauthDiscoverer,
		TokenManager:    tokenManager,
		Permissions:     permissions,
		Pending:         pending,
		Approvals:       approvals,
		Checkpoints:     checkpoints,
		LLMClient:       llmClient,
		Catalogs:        catalogs,
		ConnManager:     connManager,
		Publisher:       publisher,
		Streams:         streams,
	})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", httpAddr)
		if err := server.Start(httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			slog.Error("http server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during graceful shutdown", "error", err)
	}
	slog.Info("gatewayd stopped")
}

func hostnameOrDefault() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "gatewayd"
	}
	return h
}

// notifyConnString builds the libpq connection string pgx.Connect expects
// for the dedicated LISTEN connection, reusing the same credentials ent's
// pool was configured with.
func notifyConnString(cfg database.Config) (string, error) {
	if cfg.Host == "" || cfg.Database == "" {
		return "", fmt.Errorf("database config missing host/database")
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	), nil
}
