package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/ballbalancer/internal/config"
	"github.com/sweeney/ballbalancer/internal/hal"
	"github.com/sweeney/ballbalancer/internal/mqtt"
	"github.com/sweeney/ballbalancer/internal/status"
	"github.com/sweeney/ballbalancer/internal/touch"
	"github.com/sweeney/ballbalancer/internal/web"
)

func main() {
	if err := newRootCmd(run, probeHardware).Execute(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

type options struct {
	configPath     string
	broker         string
	httpAddr       string
	telemetryEvery int
	heartbeat      time.Duration
}

func newRootCmd(daemon func(*config.Config) error, probe func(io.Writer, *config.Config) error) *cobra.Command {
	var opts options

	root := &cobra.Command{
		Use:          "ballbalancer",
		Short:        "balance a ball on a two-axis platform",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return daemon(cfg)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "YAML config file (built-in defaults if empty)")
	f.StringVar(&opts.broker, "broker", config.DefaultBroker, "MQTT broker address (empty to disable)")
	f.StringVar(&opts.httpAddr, "http", config.DefaultHTTPAddr, "HTTP status address (empty to disable)")
	f.IntVar(&opts.telemetryEvery, "telemetry-every", config.DefaultTelemetryEvery, "Publish telemetry every N control cycles (0 to disable)")
	f.DurationVar(&opts.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")

	root.AddCommand(&cobra.Command{
		Use:   "probe",
		Short: "read the panel and encoders once, print them and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return probe(cmd.OutOrStdout(), cfg)
		},
	})
	return root
}

// loadConfig reads the config file, then applies the flags the user set.
// Flag defaults match the config defaults.
func loadConfig(cmd *cobra.Command, opts options) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("broker") {
		cfg.MQTT.Broker = opts.broker
	}
	if flags.Changed("http") {
		cfg.HTTP.Addr = opts.httpAddr
	}
	if flags.Changed("telemetry-every") {
		cfg.MQTT.TelemetryEvery = opts.telemetryEvery
	}
	if flags.Changed("heartbeat") {
		cfg.MQTT.Heartbeat = opts.heartbeat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cfg *config.Config) error {
	board, err := hal.OpenBoard(cfg.Board())
	if err != nil {
		return fmt.Errorf("init hardware: %w", err)
	}
	defer board.Close()

	sys, err := build(board, cfg, nil, nil)
	if err != nil {
		return err
	}

	var publisher mqtt.Publisher = offlinePublisher{}
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, nil)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()
		publisher, mqttStatus = p, p
	}

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	var heartbeat <-chan time.Time
	if cfg.MQTT.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.MQTT.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("started: broker=%q http=%q telemetry_every=%d heartbeat=%v gains=%v",
		cfg.MQTT.Broker, cfg.HTTP.Addr, cfg.MQTT.TelemetryEvery, cfg.MQTT.Heartbeat, cfg.Controller.Gains)

	return runLoop(sys, publisher, mqttStatus, tracker, cfg.MQTT.TelemetryEvery, time.Now, heartbeat, sigCh)
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		HeartbeatMs:    cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:         cfg.MQTT.Broker,
		HTTPPort:       cfg.HTTP.Addr,
		TelemetryEvery: cfg.MQTT.TelemetryEvery,
		Gains:          cfg.Controller.Gains,
		Setpoint:       cfg.Controller.Setpoint,
		TicksPerRev:    cfg.Encoder.TicksPerRev,
	}
}

// probeHardware prints one panel scan and both raw encoder counts.
// The motor driver is never constructed, so the sleep line stays low.
func probeHardware(w io.Writer, cfg *config.Config) error {
	board, err := hal.OpenBoard(cfg.Board())
	if err != nil {
		return fmt.Errorf("init hardware: %w", err)
	}
	defer board.Close()
	return printProbe(w, board, cfg)
}

func printProbe(w io.Writer, board *hal.Board, cfg *config.Config) error {
	panel := touch.New(board.Terminals, cfg.Touch(), nil)
	s, err := panel.Scan()
	if err != nil {
		return fmt.Errorf("scan panel: %w", err)
	}
	if s.Contact {
		fmt.Fprintf(w, "panel: contact x=%.4fm y=%.4fm (scan %v)\n", s.X, s.Y, panel.TotalScanTime())
	} else {
		fmt.Fprintf(w, "panel: no contact (scan %v)\n", panel.TotalScanTime())
	}
	for i, c := range board.Counters {
		fmt.Fprintf(w, "encoder %d: count=%d\n", i+1, c.Count())
	}
	return nil
}
