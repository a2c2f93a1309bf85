package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/flocksim/flocksim/internal/core/events/bus"
	"github.com/flocksim/flocksim/internal/core/observability/log"
	"github.com/flocksim/flocksim/internal/core/sim"
	"github.com/flocksim/flocksim/internal/injector"
	"github.com/flocksim/flocksim/internal/server"
	"github.com/flocksim/flocksim/internal/transport/quicfeed"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		addr       = flag.String("addr", "", "viewer HTTP listen address")
		quicAddr   = flag.String("quic-addr", "", "QUIC frame feed listen address (empty disables the feed)")
		staticDir  = flag.String("static", "", "directory holding the browser viewer")
		population = flag.Int("n", 0, "number of agents")
		seed       = flag.Int64("seed", 0, "random seed for the initial spawn (0 uses the clock)")
		wrapped    = flag.Bool("wrapped", false, "wrap agents around world edges instead of bouncing")
		headless   = flag.Bool("headless", false, "run the simulation without the viewer server")
		cohesion   = flag.Float64("cohesion", -1, "cohesion coefficient")
		separation = flag.Float64("separation", -1, "separation coefficient")
		alignment  = flag.Float64("alignment", -1, "alignment coefficient")
		attraction = flag.Float64("attraction", -1, "attraction coefficient")
	)
	flag.Parse()

	logger := injector.ProvideLogger()

	cfg := sim.DefaultConfig()
	if *configPath != "" {
		loaded, err := sim.LoadConfigFile(*configPath)
		if err != nil {
			logger.Fatal("loading config failed", log.String("path", *configPath), log.Error(err))
		}
		cfg = loaded
	}

	srvCfg := server.DefaultConfig()
	feedCfg := quicfeed.DefaultConfig()
	feedEnabled := false

	// Flags set on the command line win over the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			srvCfg.ListenAddr = *addr
		case "quic-addr":
			feedCfg.ListenAddr = *quicAddr
			feedEnabled = *quicAddr != ""
		case "static":
			srvCfg.StaticDir = *staticDir
		case "n":
			cfg.Population = *population
		case "seed":
			cfg.Seed = *seed
		case "wrapped":
			cfg.Wrapped = *wrapped
		case "cohesion":
			cfg.Traits.Cohesion = *cohesion
		case "separation":
			cfg.Traits.Separation = *separation
		case "alignment":
			cfg.Traits.Alignment = *alignment
		case "attraction":
			cfg.Traits.Attraction = *attraction
		}
	})

	events := bus.New()
	engine, err := sim.NewEngine(cfg, events, logger)
	if err != nil {
		logger.Fatal("building engine failed", log.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(ctx) })

	if !*headless {
		srv := server.New(srvCfg, engine, events, logger)
		g.Go(func() error { return srv.Run(ctx) })
	}
	if feedEnabled {
		feed := quicfeed.New(feedCfg, engine, events, logger)
		g.Go(func() error { return feed.Run(ctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "flocksim:", err)
		os.Exit(1)
	}
}
