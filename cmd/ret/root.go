package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/retentionapp/retention/internal/config"
	"github.com/retentionapp/retention/internal/engine"
	"github.com/retentionapp/retention/internal/logging"
	"github.com/retentionapp/retention/internal/queue"
	"github.com/retentionapp/retention/internal/remote"
	"github.com/retentionapp/retention/internal/store"
	"github.com/retentionapp/retention/internal/topic"
	"github.com/retentionapp/retention/internal/ui"
)

var (
	flagConfig  string
	flagOffline bool

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ret",
	Short: "Offline-first 1-4-7 spaced repetition tracker",
	Long: `ret tracks study topics on the 1-4-7 schedule: review a topic one,
four, and seven days after you learn it.

Every command works against a local SQLite cache, so nothing requires a
network connection. Changes made offline are queued and replayed in
order the next time a remote service is reachable; the remote copy is
then treated as the source of truth and replaces the cache.

Run 'ret serve' to start the bundled remote service, or point
remote.url in the config at an existing one.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real config comes from viper.
		_ = godotenv.Load()
		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default ~/.config/retention/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&flagOffline, "offline", false, "Skip all remote calls; queue changes locally")

	rootCmd.AddGroup(
		&cobra.Group{ID: "topics", Title: "Topic Commands:"},
		&cobra.Group{ID: "views", Title: "View Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "admin", Title: "Admin Commands:"},
	)
}

// app bundles the wired-up stack a command needs: cache, queue, remote
// gateway, and the sync engine on top.
type app struct {
	cfg     config.Config
	logger  *log.Logger
	store   *store.Store
	queue   *queue.Queue
	gateway *remote.Gateway
	engine  *engine.Engine
}

// openApp builds the full stack from the loaded config.
func openApp() (*app, error) {
	logger := logging.New("[ret] ", cfg.Log)

	st, err := store.Open(cfg.CachePath())
	if err != nil {
		return nil, err
	}
	q := queue.New(st.RawDB(), logger)

	session, err := remote.LoadSession(cfg.DataDir)
	if err != nil {
		st.Close()
		return nil, err
	}
	gw := remote.New(cfg.RemoteURL, session, &remote.Config{
		Timeout: cfg.HTTPTimeout,
		Logger:  logger,
	})

	engCfg := engine.DefaultConfig()
	engCfg.ResyncInterval = cfg.SyncInterval
	engCfg.Logger = logger
	eng := engine.New(st, q, gw, engCfg)

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		queue:   q,
		gateway: gw,
		engine:  eng,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Printf("failed to close cache: %v", err)
	}
}

// connect makes a best-effort attempt to reach the remote and run a
// sync cycle. Failure is normal operation, not an error: the command
// proceeds against the cache and changes get queued.
func (a *app) connect(ctx context.Context) {
	if flagOffline {
		return
	}
	if err := a.engine.SyncNow(ctx); err != nil {
		a.logger.Printf("remote not reachable, working offline: %v", err)
	}
}

// reportQueue prints a one-line hint when offline changes are waiting.
func (a *app) reportQueue() {
	n, err := a.queue.Len()
	if err != nil || n == 0 {
		return
	}
	fmt.Printf("%s %d change(s) pending sync. Run 'ret sync' when back online.\n",
		ui.RenderWarn("⏳"), n)
}

// resolveTopic finds a cached topic by full id, unique id prefix, or
// exact title.
func (a *app) resolveTopic(ref string) (topic.Topic, error) {
	if t, err := a.store.Get(ref); err == nil {
		return t, nil
	}
	topics, err := a.store.List()
	if err != nil {
		return topic.Topic{}, err
	}
	var matches []topic.Topic
	for _, t := range topics {
		if strings.HasPrefix(t.ID, ref) || t.Title == ref {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return topic.Topic{}, fmt.Errorf("no topic matches %q", ref)
	default:
		return topic.Topic{}, fmt.Errorf("%q is ambiguous (%d matches); use more of the id", ref, len(matches))
	}
}

func exitErr(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
