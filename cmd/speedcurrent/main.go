// Command speedcurrent learns a speed-through-water calibration table from
// the instrument bus and reports corrected boat speed and water current.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/speedcurrent/internal/api"
	"github.com/banshee-data/speedcurrent/internal/config"
	"github.com/banshee-data/speedcurrent/internal/db"
	"github.com/banshee-data/speedcurrent/internal/fusion"
	"github.com/banshee-data/speedcurrent/internal/health"
	"github.com/banshee-data/speedcurrent/internal/monitoring"
	"github.com/banshee-data/speedcurrent/internal/nmea"
	"github.com/banshee-data/speedcurrent/internal/serialmux"
	"github.com/banshee-data/speedcurrent/internal/timeutil"
	"github.com/banshee-data/speedcurrent/internal/units"
	"github.com/banshee-data/speedcurrent/internal/version"
)

var (
	devMode       = flag.Bool("dev", false, "Replay the fixtures file instead of opening the serial port")
	fixturesPath  = flag.String("fixtures", "fixtures/nmea.txt", "NMEA fixtures replayed in dev mode")
	listen        = flag.String("listen", ":8080", "HTTP listen address")
	grpcListen    = flag.String("grpc-listen", ":50051", "gRPC health listen address (empty to disable)")
	port          = flag.String("port", "/dev/ttyUSB0", "NMEA serial port")
	baudRate      = flag.Int("baud", serialmux.DefaultBaudRate, "Serial baud rate")
	disableSerial = flag.Bool("disable-serial", false, "Run without an instrument bus")
	listPorts     = flag.Bool("list-ports", false, "List serial ports and exit")
	pcapFile      = flag.String("pcap", "", "Replay NMEA over UDP from a pcap capture instead of the serial port")
	pcapPort      = flag.Int("pcap-port", nmea.DefaultUDPPort, "UDP port carrying NMEA in the capture (0 for any)")
	pcapRealtime  = flag.Bool("pcap-realtime", false, "Replay the capture at its recorded pace")
	configFile    = flag.String("config", "speedcurrent.json", "Path to the JSON configuration file, created from defaults if missing (empty for defaults only)")
	modeFlag      = flag.String("mode", "", "Override the configured operating mode")
	dbPath        = flag.String("db-path", "speedcurrent.db", "Path to the grid snapshot database")
	unitsFlag     = flag.String("units", units.Knots, "Speed units reported by the API (mps, knots, kmph, kph)")
	showVersion   = flag.Bool("version", false, "Print the version and exit")
)

const shutdownTimeout = 5 * time.Second

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [flags]\n", os.Args[0])
	fmt.Fprintf(out, "       %s migrate <action> [flags]\n", os.Args[0])
	fmt.Fprintf(out, "       %s grid <action> [flags]\n\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate", "grid":
			os.Exit(runSubcommand(os.Args[1], os.Args[2:]))
		}
	}

	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get())
		return
	}
	if *listPorts {
		ports, err := serialmux.ListPorts()
		if err != nil {
			log.Fatalf("failed to list serial ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*unitsFlag) {
		log.Fatalf("invalid units %q, expected one of %s", *unitsFlag, units.GetValidUnitsString())
	}

	cfg, err := loadConfig(*configFile, *modeFlag)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("speedcurrent: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

// runSubcommand runs a maintenance subcommand against the database and
// returns the process exit code.
func runSubcommand(name string, args []string) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	path := fs.String("db-path", "speedcurrent.db", "Path to the grid snapshot database")
	if len(args) > 0 {
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		args = append([]string{args[0]}, fs.Args()...)
	}

	var err error
	switch name {
	case "migrate":
		err = db.RunMigrateCommand(args, *path, os.Stdout)
	case "grid":
		err = db.RunGridCommand(context.Background(), args, *path, os.Stdout)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		return 1
	}
	return 0
}

// loadConfig reads path, creating it from the defaults when missing, applies
// the mode override and its preset, and writes a demoted mode back to path.
// An empty path runs on the defaults without persisting anything.
func loadConfig(path, mode string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if err := config.SaveConfig(path, cfg); err != nil {
				return nil, err
			}
			monitoring.Logf("wrote default configuration to %s", path)
		}
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	if mode != "" {
		if !config.IsValidMode(mode) {
			return nil, fmt.Errorf("unknown mode %q", mode)
		}
		cfg.Mode = &mode
	}

	requested := cfg.GetMode()
	cfg.ApplyPreset()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if path != "" && cfg.GetMode() != requested {
		if err := config.SaveConfig(path, cfg); err != nil {
			return nil, err
		}
		monitoring.Logf("mode %s demoted to %s in %s", requested, cfg.GetMode(), path)
	}
	return cfg, nil
}

// openBus returns the line multiplexer for the instrument bus.
func openBus() (serialmux.LineMux, error) {
	switch {
	case *disableSerial || *pcapFile != "":
		return serialmux.NewDisabledSerialMux(), nil
	case *devMode:
		batches, err := loadFixtures(*fixturesPath)
		if err != nil {
			return nil, err
		}
		return serialmux.NewMockSerialMux(batches, time.Second), nil
	default:
		return serialmux.NewRealSerialMux(*port, serialmux.PortOptions{BaudRate: *baudRate})
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus, err := openBus()
	if err != nil {
		return fmt.Errorf("failed to open instrument bus: %w", err)
	}
	defer bus.Close()

	store, err := db.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()
	store.SetRetention(cfg.GetSnapshotRetention())

	var configs fusion.ConfigStore
	if path := *configFile; path != "" {
		configs = fusion.ConfigStoreFunc(func(c *config.Config) error {
			return config.SaveConfig(path, c)
		})
	}
	pipeline, err := fusion.New(fusion.Options{
		Config:  cfg,
		Sink:    newBusSink(bus, nmea.Encoder{Talker: cfg.GetSourceID()}, cfg.GetPreventDuplication()),
		Store:   store,
		Configs: configs,
		Clock:   timeutil.RealClock{},
	})
	if err != nil {
		return err
	}
	if err := pipeline.Start(ctx); err != nil {
		return fmt.Errorf("failed to start fusion pipeline: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := pipeline.Stop(stopCtx); err != nil {
			log.Printf("failed to save grid on shutdown: %v", err)
		}
	}()

	var healthSrv *health.Server
	if *grpcListen != "" {
		healthSrv = health.NewServer(health.Config{ListenAddr: *grpcListen}, pipeline)
		if err := healthSrv.Start(); err != nil {
			return fmt.Errorf("failed to start health server: %w", err)
		}
		defer healthSrv.Stop()
	}

	var wg sync.WaitGroup
	handle := lineHandler(ctx, pipeline, time.Now)

	// run the monitor routine to manage IO on the bus
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := bus.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor instrument bus: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		handled, skipped := serialmux.Forward(ctx, bus, handle)
		log.Printf("forward routine terminated: %d sentences handled, %d lines skipped", handled, skipped)
	}()

	if *pcapFile != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := replay(ctx, pipeline); err != nil {
				log.Printf("pcap replay failed: %v", err)
			}
		}()
	}

	mux := api.NewServer(pipeline, store, *unitsFlag).ServeMux()
	bus.AttachAdminRoutes(mux)
	if err := store.AttachAdminRoutes(mux); err != nil {
		return err
	}
	server := &http.Server{
		Addr:              *listen,
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP API listening on %s", *listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("failed to start server: %w", err)
		}
	}

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	cancel()
	wg.Wait()
	return nil
}

// replay feeds the pcap capture through the pipeline with capture
// timestamps.
func replay(ctx context.Context, p sampleHandler) error {
	f, err := os.Open(*pcapFile)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := nmea.ReplayPCAP(ctx, f, nmea.ReplayOptions{Port: *pcapPort, Realtime: *pcapRealtime}, func(line string, ts time.Time) {
		handleLine(ctx, p, line, ts)
	})
	log.Printf("pcap replay delivered %d lines from %s", n, *pcapFile)
	return err
}
