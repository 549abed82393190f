package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shuakami/filecheck"
)

var runFlags struct {
	config   string
	dir      string
	interval int
	report   string
	workers  int
	listen   string
	webhook  string
	logFile  string
	debug    bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Establish a baseline and monitor the directory until stopped",
	RunE:  runDaemon,
}

func init() {
	bindRunFlags(runCmd)
}

func bindRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&runFlags.config, "config", "", "YAML config file")
	f.StringVarP(&runFlags.dir, "path", "p", "", "Directory to monitor")
	f.IntVarP(&runFlags.interval, "interval", "i", 0, "Re-verification interval in seconds")
	f.StringVarP(&runFlags.report, "json", "j", "", "Report file rewritten after every cycle")
	f.IntVar(&runFlags.workers, "workers", 0, "Maximum concurrent checksum computations (default 55)")
	f.StringVar(&runFlags.listen, "listen", "", "Address for the status and metrics HTTP server")
	f.StringVar(&runFlags.webhook, "webhook", "", "URL notified with a JSON summary of every failed cycle")
	f.StringVar(&runFlags.logFile, "log-file", "", "Write logs to this file instead of stderr")
	f.BoolVar(&runFlags.debug, "debug", false, "Enable debug logging")
}

// loadConfig layers defaults, config file, environment and flags.
func loadConfig(cmd *cobra.Command) (*filecheck.Config, error) {
	cfg := filecheck.DefaultConfig()
	if runFlags.config != "" {
		if err := cfg.LoadFile(runFlags.config); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("path") {
		cfg.Dir = runFlags.dir
	}
	if flags.Changed("interval") {
		cfg.Interval = runFlags.interval
	}
	if flags.Changed("json") {
		cfg.Report = runFlags.report
	}
	if flags.Changed("workers") {
		cfg.Workers = runFlags.workers
	}
	if flags.Changed("listen") {
		cfg.Listen = runFlags.listen
	}
	if flags.Changed("webhook") {
		cfg.Webhook = runFlags.webhook
	}
	if flags.Changed("log-file") {
		cfg.LogFile = runFlags.logFile
	}
	if flags.Changed("debug") {
		cfg.Debug = runFlags.debug
	}
	return cfg, cfg.Validate()
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, closer, err := filecheck.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	// Create context with signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	usr1 := make(chan os.Signal, 16)
	signal.Notify(usr1, syscall.SIGUSR1)
	defer signal.Stop(usr1)

	d, err := filecheck.New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		return err
	}
	if err := d.Run(ctx, usr1); err != nil {
		logger.Error("daemon exited with error", "err", err)
		return err
	}
	return nil
}
