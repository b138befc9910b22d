package reinforcement

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gridworld/grid_world"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Hyper-parameter keys and their defaults.
const (
	ExplorationRateKey = "explorationRate"
	AlphaKey           = "alpha"
	LambdaKey          = "lambda"
	DecrementKey       = "decrement"
	TerminateKey       = "terminate"
	CheckpointKey      = "checkpoint"

	// If > .90 the agent explores more early on, useful on larger grids.
	DefaultExplorationRate = 0.90
	DefaultAlpha           = 0.005
	// Smaller is faster with less accuracy on larger grids.
	DefaultLambda     = 0.0000005
	DefaultDecrement  = 0.0000005
	DefaultTerminate  = 0.05
	DefaultCheckpoint = 100000
)

// ErrInvalidConfig wraps every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// ConfigKind is the expected 'kind' of a training config document.
const ConfigKind = "gridworld"

// EnvPrefix prefixes environment overrides of hyper-parameters.
const EnvPrefix = "GRIDWORLD"

var hyperParamKeys = []string{
	ExplorationRateKey,
	AlphaKey,
	LambdaKey,
	DecrementKey,
	TerminateKey,
	CheckpointKey,
}

type OuterConfig struct {
	Kind string         `yaml:"kind"`
	Def  TrainingConfig `yaml:"def"`
}

// TrainingConfig holds the learning hyper-parameters and the set of grids to train.
type TrainingConfig struct {
	// HyperParams is a key-val pair of param names and their value.
	HyperParams []HyperParameter `yaml:"hyperParams"`
	// Grids are trained independently, concurrently.
	Grids []GridConfig `yaml:"grids"`
	// TrainingDeadline bounds how long the live server runs; training itself always runs
	// to its exploration threshold.
	TrainingDeadline map[string]string `yaml:"trainingDeadline"`
}

type HyperParameter struct {
	Key string  `yaml:"key"`
	Val float64 `yaml:"val"`
}

// GridConfig describes one grid. A zero Seed seeds from the clock; ObstaclePercent
// is nil when unset, in which case the default applies.
type GridConfig struct {
	Rows            int    `yaml:"rows"`
	Cols            int    `yaml:"cols"`
	Obstacles       bool   `yaml:"obstacles"`
	ObstaclePercent *int   `yaml:"obstaclePercent"`
	Seed            uint64 `yaml:"seed"`
	// Layout, if set, overrides Rows/Cols/Obstacles with a fixed board.
	Layout []string `yaml:"layout"`
}

// Options converts the grid config to grid construction options.
func (gc GridConfig) Options() grid_world.Options {
	pct := grid_world.DefaultObstaclePercent
	if gc.ObstaclePercent != nil {
		pct = *gc.ObstaclePercent
	}
	return grid_world.Options{
		Rows:            gc.Rows,
		Cols:            gc.Cols,
		Obstacles:       gc.Obstacles,
		ObstaclePercent: pct,
	}
}

// SetHyperParam replaces or appends a hyper-parameter.
func (cfg *TrainingConfig) SetHyperParam(param string, val float64) {
	for i := range cfg.HyperParams {
		if cfg.HyperParams[i].Key == param {
			cfg.HyperParams[i].Val = val
			return
		}
	}
	cfg.HyperParams = append(cfg.HyperParams, HyperParameter{Key: param, Val: val})
}

func (cfg *TrainingConfig) GetHyperParamOrDefault(param string, defaultVal float64) float64 {
	for _, kvp := range cfg.HyperParams {
		if kvp.Key == param {
			return kvp.Val
		}
	}
	return defaultVal
}

// Params returns the learning parameters, with defaults for any missing keys.
func (cfg *TrainingConfig) Params() Params {
	return Params{
		ExplorationRate: cfg.GetHyperParamOrDefault(ExplorationRateKey, DefaultExplorationRate),
		Alpha:           cfg.GetHyperParamOrDefault(AlphaKey, DefaultAlpha),
		Lambda:          cfg.GetHyperParamOrDefault(LambdaKey, DefaultLambda),
		Decrement:       cfg.GetHyperParamOrDefault(DecrementKey, DefaultDecrement),
		Terminate:       cfg.GetHyperParamOrDefault(TerminateKey, DefaultTerminate),
	}
}

// Checkpoint returns the number of actions between progress reports.
func (cfg *TrainingConfig) Checkpoint() int64 {
	return int64(cfg.GetHyperParamOrDefault(CheckpointKey, DefaultCheckpoint))
}

// Validate checks the config in full, so that a bad grid fails before any run starts.
func (cfg *TrainingConfig) Validate() error {
	if len(cfg.Grids) == 0 {
		return fmt.Errorf("%w: no grids", ErrInvalidConfig)
	}
	if err := cfg.Params().Validate(); err != nil {
		return err
	}
	if cfg.Checkpoint() < 1 {
		return fmt.Errorf("%w: checkpoint must be positive, got %d", ErrInvalidConfig, cfg.Checkpoint())
	}
	for i, gc := range cfg.Grids {
		if len(gc.Layout) > 0 {
			continue
		}
		if err := gc.Options().Validate(); err != nil {
			return fmt.Errorf("%w: grid %d: %w", ErrInvalidConfig, i, err)
		}
	}
	if _, ok := cfg.TrainingDeadline["duration"]; ok {
		if _, err := time.ParseDuration(cfg.TrainingDeadline["duration"]); err != nil {
			return fmt.Errorf("%w: training deadline: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

// WithTrainingDeadline returns a context extended by the training deadline, if one is specified.
func (cfg *TrainingConfig) WithTrainingDeadline(
	ctx context.Context,
) (context.Context, context.CancelFunc, error) {
	if val, ok := cfg.TrainingDeadline["duration"]; ok {
		duration, err := time.ParseDuration(val)
		if err != nil {
			return nil, nil, err
		}
		innerCtx, cancel := context.WithTimeout(ctx, duration)
		return innerCtx, cancel, nil
	}
	defaultCtx, cancel := context.WithCancel(ctx)
	return defaultCtx, cancel, nil
}

// FromYaml reads a training config of the form:
//
//	kind: gridworld
//	def:
//	  hyperParams: [...]
//	  grids: [...]
//
// Hyper-parameters may be overridden from the environment, e.g. GRIDWORLD_ALPHA=0.01.
func FromYaml(path string) (*TrainingConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	var err error
	if err = vp.ReadInConfig(); err != nil {
		return nil, err
	}
	if kind := vp.GetString("kind"); kind != ConfigKind {
		return nil, fmt.Errorf("%w: kind %q, expected %q", ErrInvalidConfig, kind, ConfigKind)
	}

	// Viper folds key case, so 'def' is decoded from the raw document instead of vp.Unmarshal.
	var raw []byte
	if raw, err = os.ReadFile(vp.ConfigFileUsed()); err != nil {
		return nil, err
	}
	outerConfig := &OuterConfig{}
	if err = yaml.Unmarshal(raw, outerConfig); err != nil {
		return nil, err
	}
	innerConfig := &outerConfig.Def

	vp.SetEnvPrefix(EnvPrefix)
	for _, key := range hyperParamKeys {
		if err = vp.BindEnv(key); err != nil {
			return nil, err
		}
		if vp.IsSet(key) {
			innerConfig.SetHyperParam(key, vp.GetFloat64(key))
		}
	}

	return innerConfig, nil
}
