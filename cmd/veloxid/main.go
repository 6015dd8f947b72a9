// Command veloxid is the process entrypoint: it loads and validates the
// route/endpoint configuration, binds every endpoint, and spawns one
// route.Worker per (route, worker-index) pair, honoring SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/op/go-logging"
	"github.com/urfave/cli"

	"veloxid/banlist"
	"veloxid/config"
	"veloxid/endpoint"
	"veloxid/route"
)

const defaultConfigPath = "veloxid.toml"

var log = logging.MustGetLogger("veloxid")

func main() {
	app := cli.NewApp()
	app.Name = "veloxid"
	app.Usage = "configurable TCP tunnel router"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Value:  defaultConfigPath,
			Usage:  "path to the TOML configuration file",
			EnvVar: "VELOXID_CONFIG",
		},
		cli.BoolFlag{
			Name:  "validate",
			Usage: "parse and validate the configuration, then exit",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("fatal: %v", err))
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	path := c.String("config")

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	warnings, err := cfg.Validate()
	if err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)
	for _, w := range warnings {
		log.Warning(w)
	}

	if c.Bool("validate") {
		fmt.Println(color.GreenString("config OK: %s", path))
		return nil
	}

	color.Cyan("veloxid starting, %d route(s) from %s", len(cfg.Routes), path)

	bans := banlist.New()
	stopSweeper := make(chan struct{})
	bans.StartSweeper(stopSweeper, banSweepInterval)
	defer close(stopSweeper)

	bindings, err := bindEndpoints(cfg, bans)
	if err != nil {
		return err
	}
	defer closeAll(bindings)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		switch <-sigCh {
		case syscall.SIGINT:
			log.Notice("SIGINT received, exiting immediately")
			os.Exit(0)
		case syscall.SIGTERM:
			log.Notice("SIGTERM received, shutting down gracefully")
			cancel()
			// Accept does not observe ctx; closing the listeners unblocks
			// workers waiting for an inbound connection.
			closeAll(bindings)
		}
	}()

	var wg sync.WaitGroup
	for i, r := range cfg.Routes {
		routeName := fmt.Sprintf("route-%d", i)
		a := bindings[r.Endpoints[0]]
		b := bindings[r.Endpoints[1]]
		for worker := 0; worker < r.Size; worker++ {
			wg.Add(1)
			w := &route.Worker{
				RouteName: routeName,
				Index:     worker,
				A:         a,
				B:         b,
				Bans:      bans,
				Log:       log,
			}
			go func() {
				defer wg.Done()
				w.Run(ctx)
			}()
		}
	}

	wg.Wait()
	return nil
}

func bindEndpoints(cfg *config.Config, bans *banlist.List) (map[string]*endpoint.Binding, error) {
	bindings := make(map[string]*endpoint.Binding, len(cfg.Endpoints))
	for name, ep := range cfg.Endpoints {
		b, err := endpoint.Bind(ep.ToSpec(name), bans)
		if err != nil {
			closeAll(bindings)
			return nil, fmt.Errorf("bind %q: %w", name, err)
		}
		bindings[name] = b
	}
	return bindings, nil
}

func closeAll(bindings map[string]*endpoint.Binding) {
	for _, b := range bindings {
		_ = b.Close()
	}
}
