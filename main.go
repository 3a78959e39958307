package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"edittrack/client/telemetryapi"
	"edittrack/config"
	"edittrack/logger"
	"edittrack/storage"
	"edittrack/telemetry"
	"edittrack/tracker"
	"edittrack/usergroup"

	"github.com/google/uuid"
	"github.com/neovim/go-client/nvim"
)

const version = "0.1.0"

// noticeAckKey is the versioned acknowledgment flag for the one-time
// telemetry notice. Bump the suffix to show the notice again.
const noticeAckKey = "notice.ack.v1"

func main() {
	configPath := flag.String("config", "", "path to config.toml")
	socket := flag.String("socket", "", "nvim socket address (default: stdio)")
	logLevel := flag.String("log-level", "", "override configured log level")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("edittrack v%s\n", version)
		return
	}

	if *configPath == "" {
		if path, err := config.DefaultPath(); err == nil {
			*configPath = path
		}
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "edittrack: %v\n", err)
		os.Exit(1)
	}

	level := cfg.Log.Level
	if *logLevel != "" {
		level = *logLevel
	}
	logPath := ""
	if cfg.StateDir != "" {
		logPath = filepath.Join(cfg.StateDir, "edittrack.log")
		os.MkdirAll(cfg.StateDir, 0755)
	}
	log, err := logger.Init(logPath, logger.ParseLevel(level))
	if err != nil {
		fmt.Fprintf(os.Stderr, "edittrack: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	logger.Info("edittrack v%s starting", version)

	if err := run(cfg, *configPath, *socket); err != nil {
		logger.Fatal("%v", err)
	}
}

func run(cfg *config.Config, configPath, socket string) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	deviceID := loadOrCreateDeviceID(store)
	showNoticeOnce(store)

	var sink telemetry.Sink = telemetry.LogSink{}
	if cfg.Telemetry.Endpoint != "" {
		sink = telemetryapi.NewClient(cfg.Telemetry.Endpoint, cfg.Telemetry.Token, telemetryapi.DefaultTimeout)
	}
	gate := telemetry.NewGate(sink, deviceID, cfg.Telemetry.Enabled)
	classifier := usergroup.NewClassifier(store, deviceID, version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := connect(socket)
	if err != nil {
		return fmt.Errorf("failed to connect to nvim: %w", err)
	}
	defer n.Close()

	tracker.Configure(tracker.Deps{
		Gate:          gate,
		Content:       &bufferResolver{n: n},
		Identity:      &staticIdentity{endpoint: cfg.Telemetry.Endpoint},
		Groups:        classifier,
		Maturity:      cfg.MaturityWindow(),
		FlushInterval: cfg.FlushInterval(),
	})
	tr := tracker.Get()
	tr.Start(ctx)
	defer tracker.Shutdown()

	if err := registerHandlers(n, gate); err != nil {
		return err
	}

	// Settings changes take effect without a restart: the watcher flips the
	// gate when the config file changes.
	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, func(updated *config.Config) {
			gate.SetEnabled(updated.Telemetry.Enabled)
		})
		if err != nil {
			logger.Warn("config watcher unavailable: %v", err)
		} else {
			watcher.Start(ctx)
			defer watcher.Close()
		}
	}

	return serve(ctx, n, socket != "")
}

func openStore(cfg *config.Config) (*storage.Store, error) {
	if cfg.StateDir == "" {
		logger.Warn("no state directory; device id and user group will not persist")
		return nil, nil
	}
	store, err := storage.Open(filepath.Join(cfg.StateDir, "state.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	return store, nil
}

// showNoticeOnce logs the telemetry notice on first run. The flag is
// versioned so a changed notice is surfaced again.
func showNoticeOnce(store *storage.Store) {
	if store == nil {
		return
	}
	if store.GetDefault(noticeAckKey, "") != "" {
		return
	}
	logger.Info("edittrack collects anonymous usage telemetry; set telemetry.enabled = false in the config to opt out")
	if err := store.Set(noticeAckKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
		logger.Warn("failed to record notice acknowledgment: %v", err)
	}
}

func connect(socket string) (*nvim.Nvim, error) {
	if socket != "" {
		return nvim.Dial(socket)
	}
	return nvim.New(os.Stdin, os.Stdout, os.Stdout, func(format string, args ...any) {
		logger.Debug(format, args...)
	})
}

// acceptedEvent is the RPC payload the editor side sends when the user
// accepts a suggestion.
type acceptedEvent struct {
	RequestID       string `msgpack:"request_id"`
	SessionID       string `msgpack:"session_id"`
	Trigger         string `msgpack:"trigger"`
	SuggestionIndex int    `msgpack:"suggestion_index"`
	CompletionType  string `msgpack:"completion_type"`
	Language        string `msgpack:"language"`
	Text            string `msgpack:"text"`
	Path            string `msgpack:"path"`
	StartByte       int    `msgpack:"start_byte"`
	EndByte         int    `msgpack:"end_byte"`
}

func registerHandlers(n *nvim.Nvim, gate *telemetry.Gate) error {
	err := n.RegisterHandler("edittrack_accepted", func(n *nvim.Nvim, ev *acceptedEvent) {
		entry := entryFromEvent(ev)
		tracker.Get().Enqueue(entry)

		gate.Emit(telemetry.EventSuggestionAccepted, telemetry.Fields{
			"request_id":       entry.RequestID,
			"session_id":       entry.SessionID,
			"trigger":          string(entry.Trigger),
			"suggestion_index": entry.SuggestionIndex,
			"completion_type":  string(entry.Completion),
			"language":         entry.Language,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to register accept handler: %w", err)
	}

	err = n.RegisterHandler("edittrack_shown", func(n *nvim.Nvim, requestID string) {
		gate.Emit(telemetry.EventSuggestionShown, telemetry.Fields{
			"request_id": requestID,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to register shown handler: %w", err)
	}
	return nil
}

func entryFromEvent(ev *acceptedEvent) *tracker.Entry {
	sessionID := ev.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	trigger := tracker.TriggerAuto
	if ev.Trigger == string(tracker.TriggerOnDemand) {
		trigger = tracker.TriggerOnDemand
	}
	completion := tracker.CompletionLine
	if ev.CompletionType == string(tracker.CompletionBlock) {
		completion = tracker.CompletionBlock
	}

	return &tracker.Entry{
		AcceptedAt:      time.Now(),
		RequestID:       ev.RequestID,
		SessionID:       sessionID,
		Trigger:         trigger,
		SuggestionIndex: max(0, ev.SuggestionIndex),
		Completion:      completion,
		Language:        ev.Language,
		OriginalText:    ev.Text,
		Location: tracker.Location{
			Path:      ev.Path,
			StartByte: ev.StartByte,
			EndByte:   ev.EndByte,
		},
	}
}

func serve(ctx context.Context, n *nvim.Nvim, dialed bool) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	if !dialed {
		// Stdio connections need an explicit serve loop; Dial starts one
		// internally.
		go func() { serveErr <- n.Serve() }()
	}

	select {
	case sig := <-sigCh:
		logger.Info("received %v, shutting down", sig)
		return nil
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("rpc loop ended: %w", err)
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}
