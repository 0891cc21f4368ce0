// cgmlsim loads a card game definition (CGML YAML or Lua) and plays it:
// one traced game, an interactive game, or a batch of random games.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nathoo/cgmlsim/config"
	"github.com/nathoo/cgmlsim/engine"
	"github.com/nathoo/cgmlsim/engine/events"
	"github.com/nathoo/cgmlsim/engine/setup"
	"github.com/nathoo/cgmlsim/engine/state"
	"github.com/nathoo/cgmlsim/loader"
	"github.com/nathoo/cgmlsim/types"
)

var (
	cfgFile string
	v       = config.New()
	cfg     *config.Config
	logger  = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "cgmlsim",
	Short: "Simulate card games described in CGML",
	Long: `cgmlsim interprets a declarative card game definition and plays it
with random or interactive choices. Definitions are CGML YAML files, single
Lua files, or directories of Lua files.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Read(v, cfgFile); err != nil {
			return err
		}
		c, err := config.Decode(v)
		if err != nil {
			return err
		}
		cfg = c
		l, err := initLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		logger = l
		if f := v.ConfigFileUsed(); f != "" {
			logger.Debug("config loaded", zap.String("file", f))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ./cgmlsim.yaml or $HOME/.config/cgmlsim/cgmlsim.yaml)")
	pf.Int("players", 0, "number of players (0 uses the definition's maximum)")
	pf.Int64("seed", 0, "random seed (0 seeds from the clock)")
	pf.Int("max-iterations", 0, "stop a game after this many iterations")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: console or json")

	// Flags override the environment and the config file only when set.
	cobra.CheckErr(v.BindPFlag("simulation.players", pf.Lookup("players")))
	cobra.CheckErr(v.BindPFlag("simulation.seed", pf.Lookup("seed")))
	cobra.CheckErr(v.BindPFlag("simulation.max_iterations", pf.Lookup("max-iterations")))
	cobra.CheckErr(v.BindPFlag("logging.level", pf.Lookup("log-level")))
	cobra.CheckErr(v.BindPFlag("logging.format", pf.Lookup("log-format")))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

// game is one ready-to-play simulation.
type game struct {
	def *types.Definition
	sim *engine.Simulator
	bus *events.Bus
	rng *engine.RNG
}

// loadDefinition reads and validates the definition at path.
func loadDefinition(path string) (*types.Definition, error) {
	def, err := loader.Load(path, logger)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	logger.Debug("definition loaded",
		zap.String("game", def.Meta.Name),
		zap.Int("rules", len(def.Rules)),
		zap.Int("states", len(def.Flow.States)))
	return def, nil
}

// newGame builds the state, runs setup and wires a simulator with the
// configured seed and iteration cap.
func newGame(def *types.Definition) (*game, error) {
	sc := cfg.Simulation
	rng := engine.NewClockRNG()
	if sc.Seed != 0 {
		rng = engine.NewRNG(sc.Seed)
	}
	log := logger.With(zap.String("game", def.Meta.Name), zap.Int64("seed", rng.Seed()))

	gs, err := state.Build(def, sc.Players, log)
	if err != nil {
		return nil, err
	}
	if err := setup.Run(gs, rng, log); err != nil {
		return nil, err
	}
	bus := &events.Bus{}
	sim, err := engine.New(gs,
		engine.WithRNG(rng),
		engine.WithLogger(log),
		engine.WithMaxIterations(sc.MaxIterations),
		engine.WithEvents(bus))
	if err != nil {
		return nil, err
	}
	return &game{def: def, sim: sim, bus: bus, rng: rng}, nil
}
