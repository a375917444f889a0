// command atscd is the actuated traffic signal controller daemon (§6):
// a thin CLI wrapper around package controller that parses flags, opens
// the log sink and PID file, wires the built-in NEMA dual-ring topology,
// and runs until signaled to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/instancegaming/atsc/clock"
	"github.com/instancegaming/atsc/controller"
	"github.com/instancegaming/atsc/fieldbus"
	"github.com/instancegaming/atsc/id"
	"github.com/instancegaming/atsc/pidfile"
	"github.com/instancegaming/atsc/rpcsurface"
)

// firmwareVersion is reported by GetMetadata; overridden at link time with
// -ldflags "-X main.firmwareVersion=...", following the teacher's
// readVersion approach to build-time stamping without a version file.
var firmwareVersion = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

// run implements the documented CLI surface and exit code contract (§6).
// A direct `atscd` invocation with no subcommand is rejected (exit 1) —
// only `atscd control ...` is a supported entry point, mirroring the
// "direct-call-required" exit the spec names but leaves external.
func run(args []string) int {
	if len(args) == 0 || args[0] != "control" {
		fmt.Fprintln(os.Stderr, "usage: atscd control [flags]")
		return int(controller.ExitDirectCallRequired)
	}

	fs := flag.NewFlagSet("control", flag.ContinueOnError)
	pidPath := fs.String("pid", "", "path to PID file")
	tickRate := fs.Float64("r", 1, "tick rate (Hz), 0.01-1000")
	fs.Float64Var(tickRate, "tick-rate", 1, "tick rate (Hz), 0.01-1000")
	tickScale := fs.Float64("s", 1, "tick scale (simulation time multiplier)")
	fs.Float64Var(tickScale, "tick-scale", 1, "tick scale (simulation time multiplier)")
	rpcPort := fs.Int("p", 9310, "RPC port, 1-65535")
	fs.IntVar(rpcPort, "rpc-port", 9310, "RPC port, 1-65535")
	levels := fs.String("L", "", "per-component log level spec")
	fs.StringVar(levels, "levels", "", "per-component log level spec")
	logPath := fs.String("l", "", "log file path (stderr if empty)")
	fs.StringVar(logPath, "log", "", "log file path (stderr if empty)")
	presenceSim := fs.Bool("presence-simulation", false, "synthesize detector presence")
	simSeed := fs.Int64("simulation-seed", 1, "presence simulator seed")
	initDemand := fs.Bool("init-demand", false, "assert demand on every phase at boot")
	fieldBusDevice := fs.String("field-bus-device", "", "serial device path for the field bus (empty disables it)")
	fieldBusBaud := fs.Int("field-bus-baud", 19200, "field bus baud rate")

	if err := fs.Parse(args[1:]); err != nil {
		return int(controller.ExitDirectCallRequired)
	}

	level, err := parseLogLevel(*levels)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log level: %v\n", err)
		return int(controller.ExitLogLevelParse)
	}
	log, closeLog, err := setupLogging(*logPath, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log setup: %v\n", err)
		if os.IsNotExist(err) {
			return int(controller.ExitLogDirFailure)
		}
		return int(controller.ExitLogFacilityFailure)
	}
	defer closeLog()

	cfg := controller.DefaultConfig()
	cfg.PIDPath = *pidPath
	cfg.TickRate = *tickRate
	cfg.TickScale = *tickScale
	cfg.RPCPort = *rpcPort
	cfg.LogLevels = *levels
	cfg.LogPath = *logPath
	cfg.PresenceSimulation = *presenceSim
	cfg.SimulationSeed = *simSeed
	cfg.InitDemand = *initDemand
	cfg.FieldBusDevice = *fieldBusDevice
	cfg.FieldBusBaud = *fieldBusBaud

	var pf *pidfile.PIDFile
	if cfg.PIDPath != "" {
		pf, err = pidfile.Create(cfg.PIDPath)
		if err != nil {
			if err == pidfile.ErrExists {
				fmt.Fprintf(os.Stderr, "pid file %s already exists\n", cfg.PIDPath)
				return int(controller.ExitPIDExists)
			}
			fmt.Fprintf(os.Stderr, "pid file create: %v\n", err)
			return int(controller.ExitPIDCreateFailure)
		}
		defer func() {
			if err := pf.Remove(); err != nil {
				log.Error().Err(err).Msg("pid file remove failed")
			}
		}()
	}

	ctrl, _, err := buildController(cfg, log, firmwareVersion)
	if err != nil {
		log.Error().Err(err).Msg("controller construction failed")
		return int(controller.ExitLogFacilityFailure)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := ctrl.Run(ctx); err != nil {
		log.Error().Err(err).Msg("controller run failed")
	}
	return int(controller.ExitOK)
}

// parseLogLevel resolves the -L/--levels spec into a zerolog level. The
// spec's per-component level syntax is left for the (unspecified) RPC/log
// glue named in §1; this daemon accepts a single global level name, empty
// meaning "info".
func parseLogLevel(spec string) (zerolog.Level, error) {
	if spec == "" {
		return zerolog.InfoLevel, nil
	}
	l, err := zerolog.ParseLevel(strings.ToLower(spec))
	if err != nil {
		return 0, fmt.Errorf("%q: %w", spec, err)
	}
	return l, nil
}

// setupLogging opens logPath (or stderr) and builds a zerolog.Logger at
// level, per SPEC_FULL.md's ambient logging stack. Returns a close func
// the caller must defer.
func setupLogging(logPath string, level zerolog.Level) (zerolog.Logger, func(), error) {
	out := os.Stderr
	closeFn := func() {}
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Logger{}, nil, err
		}
		out = f
		closeFn = func() { f.Close() }
	}
	log := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return log, closeFn, nil
}

// buildController assembles the built-in NEMA dual-ring topology, an
// optional serial field bus transport, and the RPC-facing surface over
// them. Standing up a topology from a persisted configuration format is a
// Non-goal (§1); this daemon always runs the fixed eight-phase
// intersection from controller.BuildStandardDualRing.
func buildController(cfg controller.Config, log zerolog.Logger, version string) (*controller.Controller, *rpcsurface.Surface, error) {
	reg := id.NewRegistry()
	fieldOutputs, signals, phases, rings, barriers, cyc, bus, err := controller.BuildStandardDualRing(reg, log)
	if err != nil {
		return nil, nil, err
	}
	timeClock := bus.Clock(clock.Time)
	if err := timeClock.SetRate(cfg.TickRate); err != nil {
		return nil, nil, err
	}
	timeClock.SetScale(cfg.TickScale)

	var transport *fieldbus.SerialTransport
	if cfg.FieldBusDevice != "" {
		transport, err = fieldbus.OpenSerial(cfg.FieldBusDevice, cfg.FieldBusBaud)
		if err != nil {
			return nil, nil, fmt.Errorf("field bus open: %w", err)
		}
	}

	ctrl, err := controller.New(cfg, log, reg, bus, cyc, fieldOutputs, signals, phases, rings, barriers, transport)
	if err != nil {
		return nil, nil, err
	}
	if cfg.InitDemand {
		for _, p := range phases {
			p.SetDemand(true)
		}
	}
	surface := rpcsurface.New(ctrl, version)
	return ctrl, surface, nil
}
