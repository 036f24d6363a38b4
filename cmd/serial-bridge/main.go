package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	serial "github.com/tarm/goserial"
	"go.uber.org/zap"

	"solar-dashboard/internal/bridge"
	"solar-dashboard/internal/logging"
)

type bridgeConfig struct {
	port     string
	baud     int
	apiURL   string
	deviceID string
	secret   string
	simulate bool
	file     string
	once     bool
	replay   string
	speedup  float64
	start    int
	interval time.Duration
	debug    bool
}

func main() {
	cfg := parseConfig()

	logger, err := logging.New(cfg.debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("serial-bridge: stopped", zap.Error(err))
	}
	logger.Info("serial-bridge: exiting")
}

func parseConfig() bridgeConfig {
	cfg := bridgeConfig{}
	flag.StringVar(&cfg.port, "serial", os.Getenv("BRIDGE_SERIAL_PORT"), "Serial port (e.g. /dev/ttyUSB0 or COM11)")
	flag.IntVar(&cfg.baud, "baud", 115200, "Serial baud rate")
	flag.StringVar(&cfg.apiURL, "api", envDefault("BRIDGE_API_URL", "http://localhost:8080/api/ingest"), "Ingest endpoint")
	flag.StringVar(&cfg.deviceID, "device", "", "Device id (default esp32-01, sim-01 when simulating)")
	flag.StringVar(&cfg.secret, "secret", os.Getenv("INGEST_HMAC_SECRET"), "Ingest HMAC secret (optional)")
	flag.BoolVar(&cfg.simulate, "simulate", false, "Simulate readings instead of reading a serial port")
	flag.StringVar(&cfg.file, "file", "", "With -simulate, stream device lines from this file")
	flag.BoolVar(&cfg.once, "once", false, "With -simulate, send a single sample and exit")
	flag.StringVar(&cfg.replay, "replay", "", "Replay a timestamped CSV file to the ingest endpoint")
	flag.Float64Var(&cfg.speedup, "speedup", 60, "Replay speed: recorded seconds per real second")
	flag.IntVar(&cfg.start, "start", 0, "Replay start row")
	flag.DurationVar(&cfg.interval, "interval", time.Second, "Simulation interval")
	flag.BoolVar(&cfg.debug, "debug", false, "Debug logging")
	flag.Parse()

	if cfg.deviceID == "" && (cfg.simulate || cfg.replay != "") {
		cfg.deviceID = "sim-01"
	}
	if !cfg.simulate && cfg.replay == "" && cfg.port == "" {
		fmt.Fprintf(os.Stderr, "Error: a serial port is required (-serial or BRIDGE_SERIAL_PORT) unless -simulate or -replay is set\n")
		flag.Usage()
		os.Exit(1)
	}
	return cfg
}

func run(ctx context.Context, cfg bridgeConfig, logger *zap.Logger) error {
	opts := []bridge.PosterOption{bridge.WithDeviceID(cfg.deviceID), bridge.WithLogger(logger)}
	if cfg.secret != "" {
		opts = append(opts, bridge.WithSecret([]byte(cfg.secret)))
	}
	poster, err := bridge.NewPoster(cfg.apiURL, opts...)
	if err != nil {
		return err
	}

	switch {
	case cfg.replay != "":
		return runReplay(ctx, cfg, poster, logger)
	case cfg.simulate && cfg.file != "":
		return runFileSimulation(ctx, cfg, poster, logger)
	case cfg.simulate:
		count := 0
		if cfg.once {
			count = 1
		}
		return bridge.NewSimulator(time.Now().UnixNano()).Run(ctx, poster, cfg.interval, count, logger)
	default:
		return runSerial(ctx, cfg, poster, logger)
	}
}

func runSerial(ctx context.Context, cfg bridgeConfig, poster *bridge.Poster, logger *zap.Logger) error {
	var port io.ReadWriteCloser
	for {
		var err error
		port, err = serial.OpenPort(&serial.Config{Name: cfg.port, Baud: cfg.baud})
		if err == nil {
			break
		}
		logger.Warn("serial-bridge: open failed, retrying", zap.String("port", cfg.port), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(2 * time.Second):
		}
	}
	logger.Info("serial-bridge: connected", zap.String("port", cfg.port), zap.Int("baud", cfg.baud))

	go func() {
		<-ctx.Done()
		_ = port.Close()
	}()
	if err := bridge.Forward(ctx, port, poster, logger); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runFileSimulation(ctx context.Context, cfg bridgeConfig, poster *bridge.Poster, logger *zap.Logger) error {
	for {
		f, err := os.Open(cfg.file)
		if err != nil {
			return fmt.Errorf("open simulation file: %w", err)
		}
		sink := &pacedSink{next: poster, interval: cfg.interval, once: cfg.once}
		err = bridge.Forward(ctx, f, sink, logger)
		_ = f.Close()
		if err != nil {
			return err
		}
		if sink.sent == 0 {
			return fmt.Errorf("simulation file %s has no usable lines", cfg.file)
		}
		if cfg.once || ctx.Err() != nil {
			return nil
		}
	}
}

func runReplay(ctx context.Context, cfg bridgeConfig, poster *bridge.Poster, logger *zap.Logger) error {
	f, err := os.Open(cfg.replay)
	if err != nil {
		return fmt.Errorf("open replay file: %w", err)
	}
	records, err := bridge.LoadRecords(f)
	_ = f.Close()
	if err != nil {
		return err
	}
	logger.Info("serial-bridge: replay loaded",
		zap.Int("rows", len(records)),
		zap.Int("start", cfg.start),
		zap.Float64("speedup", cfg.speedup),
	)
	replayer, err := bridge.NewReplayer(poster, cfg.speedup, logger)
	if err != nil {
		return err
	}
	return replayer.Run(ctx, records, cfg.start, 0)
}

// pacedSink spaces simulated posts and stops after the first one in once mode.
type pacedSink struct {
	next     bridge.SampleSink
	interval time.Duration
	once     bool
	sent     int
}

func (s *pacedSink) PostSample(ctx context.Context, sample bridge.Sample) error {
	if s.once && s.sent > 0 {
		return nil
	}
	if s.sent > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.interval):
		}
	}
	s.sent++
	return s.next.PostSample(ctx, sample)
}

func envDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
