package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/chaz8081/mixerctl/internal/config"
	"github.com/chaz8081/mixerctl/internal/link"
	"github.com/chaz8081/mixerctl/internal/link/protocol"
)

const usageText = `usage: mixerctl [-config path] <command> [args]

commands:
  daemon                               run the control API and status poller
  status                               show the Bluetooth state
  devices                              list paired devices
  send manual-start <speed>            run at a fixed speed (0..100)
  send manual-stop
  send auto-start <profile> <min> <max> <period>
                                       run a ramp (water) or sinusoidal (oil) profile
  send auto-stop
  monitor [-port dev] [-list]          follow the controller's USB serial log
  init-config                          write the default config file
`

var logLevel = new(slog.LevelVar)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/mixerctl/config.yaml)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usageText) }
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	if args[0] == "init-config" {
		if err := runInitConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		os.Exit(1)
	}
	logLevel.Set(config.ParseLogLevel(cfg.LogLevel))

	switch args[0] {
	case "daemon":
		printBanner(cfg)
		err = runDaemon(cfg)
	case "status":
		err = runStatus(cfg)
	case "devices":
		err = runDevices(cfg)
	case "send":
		if len(args) < 2 {
			flag.Usage()
			os.Exit(1)
		}
		err = runSend(cfg, args[1:])
	case "monitor":
		err = runMonitor(cfg, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		slog.Debug("config loaded", "path", defaultPath)
		return cfg, nil
	}

	slog.Debug("no config file found, using defaults")
	return config.Default(), nil
}

// openLink connects to BlueZ and builds the connection manager.
func openLink(cfg *config.Config) (*link.BlueZ, *link.Manager, error) {
	service, err := cfg.Bluetooth.Service()
	if err != nil {
		return nil, nil, err
	}

	platform, err := link.NewBlueZ(link.BlueZOptions{
		Adapter:   cfg.Bluetooth.Adapter,
		Transport: cfg.Bluetooth.Transport,
		Channel:   cfg.Bluetooth.Channel,
	})
	if err != nil {
		return nil, nil, err
	}

	m := link.NewManager(platform, link.ManagerOptions{
		Matcher:        matcher(cfg),
		Service:        service,
		ConnectTimeout: cfg.Bluetooth.ConnectTimeout,
		WriteTimeout:   cfg.Bluetooth.WriteTimeout,
	})
	return platform, m, nil
}

func matcher(cfg *config.Config) link.Matcher {
	return link.Matcher{
		Pattern:     cfg.Device.Pattern,
		DefaultName: cfg.Device.DefaultName,
		Address:     cfg.Device.Address,
	}
}

// profileLabels resolves device.profile_labels. Validate has already
// rejected unknown names.
func profileLabels(cfg *config.Config) protocol.Labels {
	labels, err := protocol.ParseLabels(cfg.Device.ProfileLabels)
	if err != nil {
		return protocol.ShortLabels
	}
	return labels
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	target := cfg.Device.Address
	if target == "" {
		target = fmt.Sprintf("name contains %q or equals %q", cfg.Device.Pattern, cfg.Device.DefaultName)
	}
	fmt.Println("=== mixerctl ===")
	fmt.Printf("  Device:    %s\n", target)
	fmt.Printf("  Adapter:   %s (%s)\n", cfg.Bluetooth.Adapter, cfg.Bluetooth.Transport)
	fmt.Printf("  Profiles:  %s\n", cfg.Device.ProfileLabels)
	fmt.Printf("  Poll:      %s\n", cfg.PollInterval)
	fmt.Printf("  Listen:    %s\n", cfg.Control.Listen)
	if cfg.Monitor.Port != "" {
		fmt.Printf("  Telemetry: %s @ %d\n", cfg.Monitor.Port, cfg.Monitor.Baud)
	}
	fmt.Printf("  Log:       %s\n", cfg.LogLevel)
	fmt.Println("================")
}
