package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
	"github.com/tifye/pitwall/advisory"
	"github.com/tifye/pitwall/api"
	"github.com/tifye/pitwall/discord"
	"github.com/tifye/pitwall/engine"
	"github.com/tifye/pitwall/mux"
	"github.com/tifye/pitwall/race"
	"github.com/tifye/pitwall/storage"
	"github.com/tifye/pitwall/strategy"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	config := viper.New()
	config.AutomaticEnv()

	err := godotenv.Load()
	if err != nil {
		log.Warn("could not load .env file", "err", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	setDefaults(config)
	level, err := log.ParseLevel(config.GetString("LOG_LEVEL"))
	if err != nil {
		level = log.InfoLevel
	}
	logger := log.NewWithOptions(os.Stdout, log.Options{
		Level:           level,
		ReportTimestamp: true,
	})

	err = run(ctx, logger, config)
	if err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func setDefaults(config *viper.Viper) {
	config.SetDefault("PORT", 6565)
	config.SetDefault("LAP_INTERVAL", 2*time.Second)
	config.SetDefault("LAPS_PER_TICK", 1)
	config.SetDefault("HISTORY_LEN", engine.DefaultHistoryLen)
	config.SetDefault("DISRUPTION_RATE", 1.0)
	config.SetDefault("LOG_LEVEL", "info")
}

func run(ctx context.Context, logger *log.Logger, config *viper.Viper) error {
	port := config.GetInt("PORT")

	deps, cfs, err := initDependencies(ctx, logger, config)
	if err != nil {
		return fmt.Errorf("init deps: %s", err)
	}
	defer func() {
		if err := cfs.Cleanup(); err != nil {
			logger.Error("cleanup funcs", "err", err)
		}
	}()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("net listen: %s", err)
	}

	s := api.NewServer(logger.WithPrefix("api"), config, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Engine.Run(gctx)
	})
	g.Go(func() error {
		logger.Printf("serving on %s", ln.Addr())
		err := s.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %s", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(closeCtx); err != nil {
			return fmt.Errorf("server shutdown: %s", err)
		}
		return nil
	})

	return g.Wait()
}

func initDependencies(ctx context.Context, logger *log.Logger, config *viper.Viper) (deps *api.ServerDependencies, cfs CleanupFuncs, err error) {
	defer func() {
		if err == nil {
			return
		}

		if ferr := cfs.Cleanup(); ferr != nil {
			err = errors.Join(err, ferr)
		}
	}()

	roster := race.DefaultRoster()
	if path := config.GetString("ROSTER_PATH"); path != "" {
		roster, err = race.LoadRoster(path)
		if err != nil {
			return nil, cfs, fmt.Errorf("load roster: %s", err)
		}
	}
	initial, err := race.NewState(roster)
	if err != nil {
		return nil, cfs, fmt.Errorf("new race: %s", err)
	}

	seed1, seed2 := config.GetUint64("SEED1"), config.GetUint64("SEED2")
	logger.Info("race", "track", initial.Track.Name, "laps", initial.TotalLaps, "cars", len(initial.Cars), "seed1", seed1, "seed2", seed2)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	stepper := engine.NewStepper(
		logger.WithPrefix("stepper"),
		initial.Track,
		seed1, seed2,
		engine.WithHistoryLen(config.GetInt("HISTORY_LEN")),
	)
	clock := engine.NewClock(config.GetDuration("LAP_INTERVAL"), config.GetInt("LAPS_PER_TICK"))
	eng := engine.New(logger.WithPrefix("engine"), initial, stepper, clock, engine.NewMetrics(reg))

	optimizer := strategy.NewOptimizer(strategy.NewModel(initial.Track), initial.Track.PitLoss)
	advisor := advisory.New(logger.WithPrefix("advisory"), optimizer, seed1^seed2, seed2+1)

	limiter := rate.NewLimiter(rate.Limit(config.GetFloat64("DISRUPTION_RATE")), 3)
	wsMux := mux.NewMux(logger.WithPrefix("mux"))
	hub := mux.NewRaceHub(logger.WithPrefix("hub"), wsMux, eng, advisor.Any, limiter)
	eng.Subscribe(hub)

	if path := config.GetString("ARCHIVE_PATH"); path != "" {
		db, err := storage.InitDuckDB(path)
		if err != nil {
			return nil, cfs, fmt.Errorf("init duckdb: %s", err)
		}
		cfs.Defer(db.Close)

		archive, err := storage.NewArchive(ctx, logger.WithPrefix("archive"), db, initial.Track)
		if err != nil {
			return nil, cfs, fmt.Errorf("new archive: %s", err)
		}
		eng.Subscribe(archive)
		logger.Info("archiving race", "path", path, "raceID", archive.RaceID())
	}

	if token := config.GetString("DISCORD_BOT_TOKEN"); token != "" {
		radio, err := discord.NewRadio(
			logger.WithPrefix("radio"),
			token,
			config.GetString("DISCORD_CHANNEL_ID"),
			func(st *race.State) string { return advisor.Report(st).Rationale },
		)
		if err != nil {
			return nil, cfs, fmt.Errorf("new discord radio: %s", err)
		}
		if err := radio.Start(); err != nil {
			return nil, cfs, fmt.Errorf("start discord radio: %s", err)
		}
		cfs.Defer(func() error {
			if err := radio.Stop(); err != nil {
				return fmt.Errorf("close discord radio: %s", err)
			}
			return nil
		})
		eng.Subscribe(radio)
	}

	sessionSecret := config.GetString("SESSION_SECRET")
	if sessionSecret == "" {
		logger.Warn("SESSION_SECRET not set, using a random key, sessions will not survive restarts")
		sessionSecret = string(securecookie.GenerateRandomKey(32))
	}
	sessionStore := sessions.NewFilesystemStore("", []byte(sessionSecret))
	newSessionCookie := func(s *sessions.Session) (*http.Cookie, error) {
		val, err := securecookie.EncodeMulti(s.Name(), s.ID, sessionStore.Codecs...)
		if err != nil {
			return nil, err
		}
		return sessions.NewCookie(s.Name(), val, s.Options), nil
	}

	return &api.ServerDependencies{
		Engine:           eng,
		Hub:              hub,
		WSMux:            wsMux,
		Advisor:          advisor,
		Gatherer:         reg,
		SessionStore:     sessionStore,
		NewSessionCookie: newSessionCookie,
	}, cfs, nil
}
