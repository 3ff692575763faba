package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nicebartender/claudio-bot/admin"
	"github.com/nicebartender/claudio-bot/command"
	"github.com/nicebartender/claudio-bot/db"
	"github.com/nicebartender/claudio-bot/dispatch"
	"github.com/nicebartender/claudio-bot/keylock"
	"github.com/nicebartender/claudio-bot/notify"
	"github.com/nicebartender/claudio-bot/rpc"
	"github.com/nicebartender/claudio-bot/settings"
	"github.com/nicebartender/claudio-bot/task"
	"github.com/nicebartender/claudio-bot/ws"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newRootCmd(&cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:          "claudio-bot",
		Short:        "Chat command bot behind a websocket bridge",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := cfg.Level()
			if err != nil {
				return err
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path, or :memory:")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")

	var owners []string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Accept bridge connections and dispatch commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("owner") {
				ids, err := parseOwners(owners)
				if err != nil {
					return err
				}
				cfg.Owners = ids
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), *cfg)
		},
	}
	serve.Flags().StringVar(&cfg.ListenAddr, "addr", cfg.ListenAddr, "Listen address")
	serve.Flags().StringVar(&cfg.Prefix, "prefix", cfg.Prefix, "Command prefix")
	serve.Flags().StringSliceVar(&owners, "owner", nil, "Bot owner user id (repeatable)")
	serve.Flags().StringVar(&cfg.BridgeKey, "bridge-key", cfg.BridgeKey, "Public key bridges must sign with (base64url)")
	serve.Flags().DurationVar(&cfg.NotifyDelay, "notify-delay", cfg.NotifyDelay, "Delay for notifications of users ignoring their active channel")

	root.AddCommand(serve, newDumpCmd(cfg), newKeygenCmd(), newVersionCmd())
	return root
}

func parseOwners(values []string) ([]uint64, error) {
	ids := make([]uint64, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("invalid owner id %q", v)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type backend interface {
	settings.Backend
	io.Closer
}

type memoryBackend struct {
	*settings.MemoryBackend
}

func (memoryBackend) Close() error { return nil }

func openBackend(path string) (backend, error) {
	if path == memoryDB {
		slog.Warn("using in-memory settings, nothing will be persisted")
		return memoryBackend{settings.NewMemoryBackend()}, nil
	}
	return db.Open(path)
}

func runServe(ctx context.Context, cfg Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openBackend(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	pub, _ := cfg.PublicKey()
	if pub == nil {
		slog.Warn("no bridge public key configured, any bridge will be accepted")
	}

	locks := keylock.New[keylock.Key]()
	docs := settings.New(store, nil, locks)
	tasks := task.NewGroup(slog.Default())

	hub := ws.NewHub(pub)
	hub.CallTimeout = cfg.CallTimeout

	registry := command.NewRegistry()
	engine := dispatch.New(dispatch.Config{Prefix: cfg.Prefix, Owners: cfg.Owners}, registry, hub, tasks)
	if err := engine.Use(
		admin.New(docs, registry),
		notify.New(docs, hub, tasks, cfg.NotifyDelay),
	); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	rpc.NewRouter(hub, engine)

	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/", hub)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"bridges":  hub.Bridges(),
			"commands": len(registry.Descriptors()),
		})
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("claudio-bot starting", "addr", cfg.ListenAddr, "prefix", cfg.Prefix, "owners", len(cfg.Owners))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}

	slog.Info("waiting for background tasks")
	tasks.Wait()
	return nil
}
