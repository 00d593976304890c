package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/chaz8081/mixerctl/internal/config"
	"github.com/chaz8081/mixerctl/internal/control"
	"github.com/chaz8081/mixerctl/internal/link"
	"github.com/chaz8081/mixerctl/internal/link/protocol"
	"github.com/chaz8081/mixerctl/internal/monitor"
)

func runInitConfig() error {
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		return nil
	}
	fmt.Printf("Wrote default config to %s\n", path)
	return nil
}

func runStatus(cfg *config.Config) error {
	platform, _, err := openLink(cfg)
	if err != nil {
		return err
	}
	defer platform.Close()

	d := link.Describe(platform.AdapterEnabled(), platform.PermissionGranted(), false, "")
	fmt.Println(d.Text)
	return nil
}

func runDevices(cfg *config.Config) error {
	platform, _, err := openLink(cfg)
	if err != nil {
		return err
	}
	defer platform.Close()

	if !platform.PermissionGranted() {
		return link.ErrPermissionDenied
	}
	devices, err := platform.PairedDevices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No paired devices")
		return nil
	}

	m := matcher(cfg)
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tNAME\tMIXER")
	for _, d := range devices {
		mark := ""
		if m.Match(d) {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Address, d.Name, mark)
	}
	return tw.Flush()
}

// encodeCommand turns send arguments into a wire command.
func encodeCommand(labels protocol.Labels, args []string) (string, error) {
	switch args[0] {
	case "manual-start":
		if len(args) != 2 {
			return "", errors.New("usage: mixerctl send manual-start <speed>")
		}
		speed, err := protocol.ParseNumber("speed", args[1])
		if err != nil {
			return "", err
		}
		return protocol.ManualStart(speed)
	case "manual-stop":
		return protocol.ManualStop(), nil
	case "auto-start":
		if len(args) != 5 {
			return "", errors.New("usage: mixerctl send auto-start <profile> <min> <max> <period>")
		}
		p, err := control.AutoForm{Profile: args[1], MinSpeed: args[2], MaxSpeed: args[3], Period: args[4]}.Params()
		if err != nil {
			return "", err
		}
		return labels.AutoStart(p)
	case "auto-stop":
		return protocol.AutoStop(), nil
	}
	return "", fmt.Errorf("unknown send command %q", args[0])
}

func runSend(cfg *config.Config, args []string) error {
	cmd, err := encodeCommand(profileLabels(cfg), args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	platform, manager, err := openLink(cfg)
	if err != nil {
		return err
	}
	defer platform.Close()
	defer manager.Disconnect()

	if err := manager.Connect(ctx); err != nil {
		return err
	}
	if err := manager.Send(cmd); err != nil {
		return err
	}
	if dev, ok := manager.Device(); ok {
		fmt.Printf("Sent %s to %s\n", cmd, dev.Name)
	}
	return nil
}

func runMonitor(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	port := fs.String("port", cfg.Monitor.Port, "serial port of the controller")
	list := fs.Bool("list", false, "list serial ports and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *list {
		ports, err := monitor.Ports()
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := monitorOptions(cfg)
	opts.Port = *port
	mon, err := monitor.Open(ctx, opts, os.Stdout)
	if err != nil {
		return err
	}
	defer mon.Close()

	fmt.Printf("Connected to %s, Ctrl+C to quit.\n", opts.Port)
	err = mon.Run(ctx)

	if last, ok := mon.History().Latest(); ok {
		fmt.Printf("Last RPM: %.1f (%d samples)\n", last.RPM, mon.History().Len())
	}
	return err
}
