/*
Gridworld trains an agent to walk a rectangular board to a goal cell with SARSA(lambda)-style
control, annealing its exploration rate every episode until it falls to a threshold. Several
boards may be trained at once, each on its own goroutine; progress is logged to the console and
optionally pushed to a browser over websocket.
*/

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"gridworld/console"
	"gridworld/grid_world"
	"gridworld/reinforcement"
	"gridworld/server"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const defaultConfigPath = "./config.yaml"

var (
	configFile *string
	serve      *bool
	dbg        *bool
	host       *string
	port       *string
)

func init() {
	configFile = flag.String("config", "", "The training config; defaults to $GRIDWORLD_CONFIG, then "+defaultConfigPath)
	serve = flag.Bool("serve", false, "serve a live view of training")
	dbg = flag.Bool("debug", false, "debug mode: log checkpoints and train the debug board")
	host = flag.String("host", "", "The host ip")
	port = flag.String("port", "8080", "The host port")
}

func configPath() string {
	if *configFile != "" {
		return *configFile
	}
	vp := viper.New()
	vp.SetEnvPrefix(reinforcement.EnvPrefix)
	vp.SetDefault("config", defaultConfigPath)
	_ = vp.BindEnv("config")
	return vp.GetString("config")
}

func selectGrids(cfg *reinforcement.TrainingConfig) []reinforcement.GridConfig {
	if *dbg {
		return []reinforcement.GridConfig{{Layout: grid_world.DebugLayout}}
	}
	return cfg.Grids
}

func newRuns(cfg *reinforcement.TrainingConfig) (runs []*reinforcement.Run, err error) {
	params := cfg.Params()
	for _, gc := range selectGrids(cfg) {
		var run *reinforcement.Run
		if run, err = reinforcement.NewRun(gc, params, cfg.Checkpoint()); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return
}

func runApp() (err error) {
	if err = godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg(".env file not found or could not be loaded")
	}

	var cfg *reinforcement.TrainingConfig
	if cfg, err = reinforcement.FromYaml(configPath()); err != nil {
		return
	}
	if err = cfg.Validate(); err != nil {
		return
	}

	var runs []*reinforcement.Run
	if runs, err = newRuns(cfg); err != nil {
		return
	}

	tracker := reinforcement.NewTracker(runs)
	obs := reinforcement.Observers{
		console.NewReporter(os.Stdout, log.Logger),
		tracker,
	}

	if !*serve {
		_, err = reinforcement.TrainAll(runs, obs)
		return
	}

	appCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverCtx, cancel, err := cfg.WithTrainingDeadline(appCtx)
	if err != nil {
		return
	}
	defer cancel()

	feed := server.NewFeed(runs)
	obs = append(obs, feed)

	var srv *server.Server
	if srv, err = server.NewServer(
		serverCtx,
		*host+":"+*port,
		feed,
		tracker,
		log.Logger,
	); err != nil {
		return
	}

	// Training cannot be interrupted; the server stays up until the deadline or a signal.
	group := errgroup.Group{}
	group.Go(func() error {
		defer feed.Close()
		_, trainErr := reinforcement.TrainAll(runs, obs)
		return trainErr
	})
	group.Go(func() error {
		return srv.Serve(serverCtx)
	})

	return group.Wait()
}

func main() {
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *dbg {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := runApp(); err != nil {
		log.Fatal().Err(err).Msg("gridworld failed")
	}
	log.Info().Msg("done")
}
