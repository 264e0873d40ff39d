package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"aionclock/button"
	"aionclock/config"
	"aionclock/device"
	"aionclock/engine"
	"aionclock/messaging"
	"aionclock/sensor"
	"aionclock/store"
	"aionclock/wifi"
	"aionclock/www"
)

func main() {
	configPath := flag.String("config", "/etc/aionclock/aionclock.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	journal := flag.Int("journal", 0, "print the newest N lifecycle journal entries and exit")
	flag.Parse()

	if *debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		cfg.Web.Addr = *addr
	}
	if *journal > 0 {
		if err := dumpJournal(cfg.Storage.JournalPath, *journal, os.Stdout); err != nil {
			log.Fatalf("journal: %v", err)
		}
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Without the sensor the device has nothing to do. Halt until stopped rather
	// than retrying or running degraded.
	sens, err := sensor.Open(cfg.Sensor)
	if err != nil {
		log.Printf("sensor: %v; halting", err)
		<-sigCh
		os.Exit(1)
	}

	for _, p := range []string{cfg.Storage.CredentialsPath, cfg.Storage.SettingsPath, cfg.Storage.JournalPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			log.Fatalf("create state directory: %v", err)
		}
	}
	creds, err := store.OpenCredentialStore(cfg.Storage.CredentialsPath)
	if err != nil {
		log.Fatalf("open credential store: %v", err)
	}

	serial := cfg.Device.Serial
	if serial == "" {
		if serial, err = device.HardwareSerial(); err != nil {
			log.Fatalf("device serial: %v", err)
		}
	}
	identity := device.Identity{
		Name:    cfg.Device.Name,
		Type:    cfg.Device.Type,
		Version: cfg.Device.Version,
		Serial:  serial,
	}

	policy, err := engine.PolicyFromConfig(cfg.Registration)
	if err != nil {
		log.Fatalf("registration policy: %v", err)
	}

	var btn engine.Button
	if cfg.Button.Enabled {
		det := button.NewDetector(cfg.Button.Hold, cfg.Button.Debounce)
		g, err := button.OpenGPIO(cfg.Button.Chip, cfg.Button.Line, cfg.Button.Inverted, det)
		if err != nil {
			log.Printf("button: %v (continuing without button)", err)
		} else {
			defer g.Close()
			btn = g
		}
	}

	broker := messaging.NewClient(&cfg.Messaging)
	defer broker.Close()

	eng := engine.New(engine.Config{
		AppConfig:   cfg,
		Identity:    identity,
		Credentials: creds,
		WiFi:        wifi.New(cfg.WiFi.Interface),
		Registrar:   messaging.NewRegistrar(cfg.Registration.URL, cfg.Registration.Timeout),
		Broker:      broker,
		Sensor:      sens,
		Button:      btn,
		Rebooter:    device.NewSystemRebooter(),
		Policy:      policy,
		LogFunc:     log.Printf,
		Debug:       *debug,
	})

	// The journal is diagnostic only; the device runs without it.
	db, err := store.Open(cfg.Storage.JournalPath)
	if err != nil {
		log.Printf("open journal: %v (continuing without journal)", err)
	} else {
		defer db.Close()
		eng.AttachJournal(db, device.NewBootID())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		eng.Run(ctx)
	}()

	server := &http.Server{Addr: cfg.Web.Addr, Handler: www.NewRouter(eng)}
	go func() {
		log.Printf("%s %s (serial %s) listening on %s", cfg.Device.Name, cfg.Device.Version, serial, cfg.Web.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-sigCh
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown: %v", err)
	}
	cancel()
	<-engineDone
}
