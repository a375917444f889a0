package controller

import (
	"fmt"
	"time"
)

// Config holds the runtime parameters accepted by the control daemon (§6).
// Loading this struct from a file or environment is explicitly out of
// scope (§1 Non-goals: persisted configuration formats) — the core only
// validates and consumes an already-built Config.
type Config struct {
	PIDPath              string
	TickRate             float64 // Hz, CLI range 0.01-1000
	TickScale            float64 // wall-clock multiplier, simulation mode
	RPCPort              int
	LogLevels            string
	LogPath              string
	PresenceSimulation   bool
	SimulationSeed       int64
	InitDemand           bool
	FieldBusDevice       string
	FieldBusBaud         int
	ShutdownTimeout      time.Duration
	CETDuration          time.Duration // control entrance transition, min 3s
	BusDegradedThreshold int
}

// DefaultConfig returns a Config with the manufacturing defaults named in
// §4.1 and §4.5.
func DefaultConfig() Config {
	return Config{
		TickRate:        1,
		TickScale:       1,
		RPCPort:         9310,
		FieldBusBaud:    19200,
		ShutdownTimeout: 10 * time.Second,
		CETDuration:     3 * time.Second,
	}
}

// Validate checks the ranges specified in §6's CLI surface, returning the
// first violation found.
func (c Config) Validate() error {
	if c.TickRate < 0.01 || c.TickRate > 1000 {
		return fmt.Errorf("config: tick-rate %v out of range [0.01,1000]", c.TickRate)
	}
	if c.RPCPort < 1 || c.RPCPort > 65535 {
		return fmt.Errorf("config: rpc-port %d out of range [1,65535]", c.RPCPort)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("config: shutdown timeout must be positive")
	}
	if c.CETDuration < 3*time.Second {
		return fmt.Errorf("config: CET duration %v below the 3s safety floor", c.CETDuration)
	}
	return nil
}

// ExitCode enumerates the stable CLI exit contract (§6).
type ExitCode int

const (
	ExitOK ExitCode = iota
	ExitDirectCallRequired
	ExitLogLevelParse
	ExitLogDirFailure
	ExitLogFacilityFailure
	ExitPIDCreateFailure
	ExitPIDExists
	ExitPIDRemoveFailure
)
