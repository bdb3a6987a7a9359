package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cogniscope/internal/analyzer"
	"cogniscope/internal/config"
	"cogniscope/internal/discovery"
	"cogniscope/internal/intercept"
	"cogniscope/internal/monitor"
	"cogniscope/internal/protocol"
	"cogniscope/internal/sink"
	"cogniscope/internal/store"
)

var (
	verbose    bool
	configPath string
	homeDir    string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cogniscope",
	Short: "cogniscope - cognitive friction monitor for MCP traffic",
	Long: `cogniscope observes line-delimited JSON-RPC traffic between AI-agent
hosts and their MCP tool servers and derives a deterministic, rule-based
cognitive friction score in near-real time.

It spawns the configured tool servers with their streams captured,
reassembles frames, correlates best-effort interactions, and maintains a
sliding-window score with friction-pattern detection.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// runCmd monitors discovered sources until interrupted.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover hosts and monitor their MCP traffic until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		var reportStore analyzer.ReportStore
		var insightSink sink.InsightSink = sink.NewLogSink(logger)
		if cfg.Storage.Path != "" {
			st, err := store.Open(cfg.Storage.Path)
			if err != nil {
				logger.Warn("Persistence disabled", zap.Error(err))
			} else {
				defer st.Close()
				reportStore = st
			}
		}

		m := monitor.New(cfg, reportStore, insightSink, logger)

		scanner := discovery.NewScanner(homeDir, logger)
		hosts := discovery.Runnable(scanner.Scan())
		if len(hosts) == 0 {
			return fmt.Errorf("no runnable host configurations found")
		}

		var sources []intercept.Source
		for _, h := range hosts {
			for name, srv := range h.Servers {
				sources = append(sources, intercept.Source{
					Host:    h.Name,
					Server:  name,
					Command: srv.Command,
					Args:    srv.Args,
					Env:     srv.Env,
				})
			}
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		if err := m.Start(ctx, sources); err != nil {
			return err
		}
		defer m.Stop()

		watcher, err := discovery.NewWatcher(scanner, func(hosts []discovery.HostConfig) {
			logger.Info("Host configuration changed",
				zap.Int("runnable", len(discovery.Runnable(hosts))))
		}, logger)
		if err == nil {
			if err := watcher.Start(); err == nil {
				defer watcher.Stop()
			}
		}

		logger.Info("Monitoring", zap.Int("sources", len(sources)))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		status := m.Status()
		fmt.Printf("messages: %d  interactions: %d  cognitive load: %.1f\n",
			status.MessageCount, status.InteractionCount, status.CognitiveLoad)
		return nil
	},
}

// discoverCmd prints the discovered host configurations.
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List discovered AI-host configurations and their MCP servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		scanner := discovery.NewScanner(homeDir, logger)
		for _, h := range scanner.Scan() {
			marker := " "
			if h.Exists && h.Enabled {
				marker = "*"
			}
			fmt.Printf("%s %-16s %s\n", marker, h.Name, h.ConfigPath)
			for name, srv := range h.Servers {
				fmt.Printf("    %-20s %s\n", name, srv.Command)
			}
		}
		return nil
	},
}

// analyzeCmd scores frames read from stdin, one JSON-RPC object per line.
var analyzeCmd = &cobra.Command{
	Use:   "analyze [host] [server]",
	Short: "Score line-delimited JSON-RPC frames from stdin",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, server := "stdin", "stdin"
		if len(args) > 0 {
			host = args[0]
		}
		if len(args) > 1 {
			server = args[1]
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		m := monitor.New(cfg, nil, sink.NewLogSink(logger), logger)
		if err := m.Start(cmd.Context(), nil); err != nil {
			return err
		}
		defer m.Stop()

		in := bufio.NewScanner(os.Stdin)
		in.Buffer(make([]byte, 0, 64*1024), cfg.Retention.ReassemblyBufferMax)
		for in.Scan() {
			if frame, ok := protocol.ParseFrame(in.Text()); ok {
				m.AnalyzeMessage(frame, host, server)
			}
		}

		out, err := json.MarshalIndent(m.Score(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

// reportCmd generates a report from the current session state or lists
// persisted ones.
var reportCmd = &cobra.Command{
	Use:   "report [trace|usability|list]",
	Short: "Show persisted reports from the artifact store",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.Storage.Path == "" {
			return fmt.Errorf("no storage path configured; set storage.path in the config file")
		}

		st, err := store.Open(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		kind := ""
		switch args[0] {
		case "trace", "usability":
			kind = args[0]
		case "list":
		default:
			return fmt.Errorf("unknown report kind %q", args[0])
		}

		reports, err := st.ListReports(kind, 10)
		if err != nil {
			return err
		}
		if len(reports) == 0 {
			fmt.Println("no reports")
			return nil
		}
		for _, r := range reports {
			fmt.Printf("#%d %s %s %s\n", r.ID, r.Kind, r.Host,
				r.GeneratedAt.Format("2006-01-02 15:04:05"))
			if args[0] != "list" {
				fmt.Println(r.Payload)
			}
		}
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (or COGNISCOPE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "home directory to scan for host configs")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(reportCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
