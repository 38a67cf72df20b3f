// dssshell is an interactive shell over a digitalSTROM apartment.
//
// It reads the same configuration file as dsssync (DSSSYNC_CONFIG, default
// configs/config.yaml). With the file persistence backend the cached
// structure is shared with the daemon; every other backend builds the
// structure on start.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chzyer/readline"

	"github.com/nerrad567/gray-logic-dss/internal/dss"
	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/logging"
)

var version = "dev"

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cancel); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cancel context.CancelFunc) error {
	path := os.Getenv("DSSSYNC_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "dss> ",
		HistoryFile:     historyFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("creating readline: %w", err)
	}
	defer rl.Close()

	// Logs go through readline so they do not garble the prompt.
	logCfg := cfg.Logging
	logCfg.Format = "text"
	if logCfg.Level == "" || logCfg.Level == "info" {
		logCfg.Level = "warn"
	}
	log := logging.NewWithWriter(logCfg, version, rl.Stderr())

	opts := []dss.Option{
		dss.WithLogger(log.Component("dss")),
		dss.WithPort(cfg.DSS.Port),
		dss.WithInsecureSkipVerify(cfg.DSS.InsecureSkipVerify),
		dss.WithRequestTimeout(cfg.GetRequestTimeout()),
		dss.WithSubscriptionID(cfg.Events.SubscriptionID),
		dss.WithPollTimeout(cfg.GetPollTimeout()),
		dss.WithRetryDelay(cfg.GetRetryDelay()),
	}

	fmt.Fprintf(rl.Stdout(), "Connecting to %s...\n", cfg.DSS.Host)
	var apt *dss.Apartment
	if cfg.Persistence.Backend == config.PersistenceFile {
		apt, err = dss.ConnectWithPersistence(ctx, cfg.DSS.Host, cfg.DSS.User, cfg.DSS.Password, cfg.Persistence.Path, opts...)
	} else {
		apt, err = dss.Connect(ctx, cfg.DSS.Host, cfg.DSS.User, cfg.DSS.Password, opts...)
	}
	if err != nil {
		return fmt.Errorf("connecting to dSS: %w", err)
	}
	defer apt.Close()

	NewShell(apt, rl, log).Run(ctx, cancel)
	return nil
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.dssshell_history"
}
