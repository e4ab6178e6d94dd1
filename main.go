package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"reflect"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"camgrid/cmd"
	"camgrid/internal/api"
	"camgrid/internal/config"
	"camgrid/internal/engine"
	"camgrid/internal/events"
	"camgrid/internal/logging"
	"camgrid/internal/metrics"
	"camgrid/internal/session"
	"camgrid/internal/sink"
	"camgrid/internal/systemd"
	"camgrid/internal/updater"
	"camgrid/internal/visibility"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Slot settings
	SlotsConfigFile string `help:"Camera slot definitions file" default:"slots.toml" toml:"slots.config_file" env:"SLOTS_CONFIG_FILE"`

	// Session settings
	StartupProfile string `help:"Startup profile (concurrent, staggered)" default:"concurrent" toml:"sessions.startup_profile" env:"SESSIONS_STARTUP_PROFILE"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Update settings
	UpdateRepository string `help:"GitHub repository for self-updates (owner/name), empty disables" default:"" toml:"update.repository" env:"UPDATE_REPOSITORY"`
	UpdatePrerelease bool   `help:"Include prereleases when checking for updates" default:"false" toml:"update.prerelease" env:"UPDATE_PRERELEASE"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSession string `help:"Session manager logging level" default:"info" toml:"logging.session" env:"LOGGING_SESSION"`
	LoggingEngine  string `help:"Stream engine logging level" default:"info" toml:"logging.engine" env:"LOGGING_ENGINE"`
	LoggingSink    string `help:"Relay sink logging level" default:"info" toml:"logging.sink" env:"LOGGING_SINK"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP    string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
}

// hubSinks adapts the relay hub to the session manager's sink provider.
type hubSinks struct{ hub *sink.Hub }

func (h hubSinks) Sink(index int) sink.Sink { return h.hub.Sink(index) }

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			logging.GetLogger("main").Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"session": opts.LoggingSession,
				"engine":  opts.LoggingEngine,
				"sink":    opts.LoggingSink,
				"api":     opts.LoggingAPI,
				"http":    opts.LoggingHTTP,
			},
		})

		logger := logging.GetLogger("main")

		eventBus := events.New()

		// Forward every log line to SSE subscribers.
		logging.SetEntryFunc(func(entry logging.Entry) {
			eventBus.Publish(events.LogEntryEvent{
				Seq:        entry.Seq,
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		hub := sink.NewHub(logging.GetLogger("sink"))
		tracker := visibility.New(eventBus)
		hub.OnPresence(tracker.SetClients)

		slotStore := config.NewSlotStore(opts.SlotsConfigFile)
		if err := slotStore.Load(); err != nil {
			logger.Error("Failed to load slot configuration", "path", opts.SlotsConfigFile, "error", err)
			os.Exit(1)
		}

		manager := session.NewManager(session.Config{
			Factory: func(cfg engine.Config, onEvent engine.EventFunc) engine.Engine {
				return engine.NewHLS(cfg, onEvent)
			},
			Sinks:   hubSinks{hub},
			Bus:     eventBus,
			Profile: session.Profile(opts.StartupProfile),
		})
		tracker.OnChange(manager.SetVisible)

		observer := metrics.NewObserver(eventBus)

		// Reload slots on external file edits. Writes made through the API
		// already applied; skip them by comparing against the store.
		slotWatcher := config.NewWatcher(
			slotStore.Path(),
			config.LoadSlotsFile,
			logging.GetLogger("config"),
		)
		slotWatcher.OnReload(func(file config.SlotsFile) {
			current := slotStore.Get()
			if reflect.DeepEqual(file.Slots, current.Slots) && file.Grid == current.Grid {
				return
			}
			if err := config.ValidateSlots(&file); err != nil {
				logger.Warn("Ignoring invalid slot configuration", "error", err)
				return
			}
			if err := slotStore.Load(); err != nil {
				logger.Warn("Failed to reload slot configuration", "error", err)
				return
			}
			logger.Info("Slot configuration changed on disk, applying")
			manager.ApplySlots(slotStore.Get())
		})

		var updateService updater.Service
		if opts.UpdateRepository != "" {
			svc, err := updater.NewService(&updater.Options{
				Repository: opts.UpdateRepository,
				Prerelease: opts.UpdatePrerelease,
			})
			if err != nil {
				logger.Warn("Update service unavailable", "error", err)
			} else {
				updateService = svc
			}
		}

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Manager:           manager,
			Slots:             slotStore,
			Hub:               hub,
			Visibility:        tracker,
			Bus:               eventBus,
			UpdateService:     updateService,
			PrometheusHandler: promhttp.Handler(),
		})

		statusCtx, stopStatus := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			systemd.StartWatchdog(statusCtx)

			if err := slotWatcher.Start(); err != nil {
				logger.Warn("Slot file watcher unavailable", "error", err)
			}

			manager.ApplySlots(slotStore.Get())

			// Periodic status line for systemctl output.
			go func() {
				ticker := time.NewTicker(30 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-statusCtx.Done():
						return
					case <-ticker.C:
						snap := manager.Snapshot()
						playing := 0
						for _, s := range snap.Sessions {
							if s.State == "playing" {
								playing++
							}
						}
						systemd.NotifyStatus(systemd.StatusLine(playing, len(snap.Sessions)))
					}
				}
			}()

			systemd.NotifyReady()

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			systemd.NotifyStopping()
			stopStatus()

			if stopErr := slotWatcher.Stop(); stopErr != nil {
				logger.Warn("Error stopping slot watcher", "error", stopErr)
			}
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if stopErr := manager.Shutdown(ctx); stopErr != nil {
				logger.Warn("Session manager shutdown incomplete", "error", stopErr)
			}

			observer.Close()
		})
	})

	cli.Root().AddCommand(cmd.CreateValidateCmd())
	cli.Root().AddCommand(cmd.CreateProbeCmd())
	cli.Root().AddCommand(cmd.CreateUpdateCmd())

	cli.Run()
}
