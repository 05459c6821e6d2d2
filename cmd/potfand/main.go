package main

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"regexp"
	"runtime"
	"slices"
	"strconv"
	"syscall"

	"github.com/mdouchement/logger"
	"github.com/mdouchement/potfand"
	showcurves "github.com/mdouchement/potfand/cmd/potfand/show_curves"
	showsensors "github.com/mdouchement/potfand/cmd/potfand/show_sensors"
	"github.com/mdouchement/potfand/hwmon/sensor"
	"github.com/spf13/cobra"
	"periph.io/x/host/v3"
)

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"

	cpath string
	dummy bool
)

func main() {
	cmd := &cobra.Command{
		Use:     "potfand",
		Short:   "A fan controller driving MCP4xxx digital potentiometers",
		Version: fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:    cobra.NoArgs,
		RunE:    daemon,
	}
	cmd.Flags().StringVarP(&cpath, "config", "c", "/etc/potfand/potfand.yml", "Configfile path")
	cmd.Flags().BoolVarP(&dummy, "dummy", "", false, "Start potfand with simulated potentiometers")
	cmd.AddCommand(showcurves.Command())
	cmd.AddCommand(showsensors.Command())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Version for potfand",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(cmd.Version)
		},
	})

	if err := cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func daemon(_ *cobra.Command, args []string) error {
	cfg, err := potfand.Load(cpath)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	h := logger.NewSlogTextHandler(os.Stdout, &logger.SlogTextOption{
		Level:            level,
		ForceColors:      true,
		ForceFormatting:  true,
		PrefixRE:         regexp.MustCompile(`^(\[.*?\])\s`),
		DisableTimestamp: true, // Provided by journalctl
	})
	log := logger.WrapSlogHandler(h)
	ctx := logger.WithLogger(context.Background(), log)

	log.Infof("potfand version %s", version)

	if !dummy {
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("periph: %w", err)
		}
	}

	hw, err := potfand.Open(cfg, dummy, log)
	if err != nil {
		return err
	}
	defer hw.Close()

	if err = hw.Setup(); err != nil {
		// Failed components are reported by the diagnostics, the others keep working.
		log.WithError(err).Error("Some components could not be initialized")
	}

	var collector *sensor.Collector
	var shaper *potfand.CurveShaper
	if cfg.Curve() {
		collector, err = sensor.New()
		if err != nil {
			return err
		}
		defer collector.Close()

		temps, err := trimCollector(cfg, collector)
		if err != nil {
			return err
		}

		shaper, err = potfand.NewCurveShaper(cfg, temps)
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var controller *potfand.Controller
	if collector != nil {
		controller, err = potfand.New(cfg, hw, collector, shaper)
	} else {
		controller, err = potfand.New(cfg, hw, nil, nil)
	}
	if err != nil {
		return err
	}

	if cfg.MQTT != nil {
		remote, err := potfand.ConnectMQTT(*cfg.MQTT, log)
		if err != nil {
			return err
		}
		defer remote.Close()

		controller.SetRemote(remote)
		for _, state := range hw.States() {
			remote.Publish(state)
		}
	}

	controller.Launch(ctx)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	cancel()

	log.Info("Gracefully shutdown")
	return nil
}

func trimCollector(cfg potfand.Config, collector *sensor.Collector) ([]sensor.Temperature, error) {
	temps, err := collector.Temperatures()
	if err != nil {
		return nil, fmt.Errorf("collect temperatures: %w", err)
	}
	exists := map[string]bool{}
	unwanted := map[string]bool{}
	for _, temp := range temps {
		exists[temp.Name] = true
		unwanted[temp.Name] = true
	}

	for _, name := range cfg.Sensors() {
		if !exists[name] {
			return nil, fmt.Errorf("not found: %s", strconv.Quote(name))
		}

		delete(unwanted, name)
	}

	collector.Drop(slices.Collect(maps.Keys(unwanted))...)
	return temps, nil
}
