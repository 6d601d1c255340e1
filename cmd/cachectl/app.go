package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/spounge-ai/easycache/pkg/cacheservice"
	"github.com/spounge-ai/easycache/pkg/patterns/lifecycle"
)

const shutdownTimeout = 10 * time.Second

var errUsage = errors.New("wrong number of arguments")

// app carries the state shared by every subcommand of a single run.
type app struct {
	out    io.Writer
	errOut io.Writer
	logger *slog.Logger
	svc    *cacheservice.Service
}

func newApp(out, errOut io.Writer) *cli.Command {
	a := &app{out: out, errOut: errOut}

	ttlFlag := &cli.DurationFlag{
		Name:  "ttl",
		Usage: "entry lifetime; zero uses the default of one hour",
		Value: 0,
	}

	return &cli.Command{
		Name:   "cachectl",
		Usage:  "inspect and modify the configured cache backend",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the cache configuration file",
				Sources: cli.NewValueSourceChain(
					cli.EnvVar("EASYCACHE_CONFIG_PATH"),
				),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
				Value: "warn",
			},
		},
		Before: a.before,
		After:  a.after,
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "print the value stored under KEY",
				ArgsUsage: "KEY",
				Action:    a.get,
			},
			{
				Name:      "set",
				Usage:     "store VALUE under KEY, replacing any existing entry",
				ArgsUsage: "KEY VALUE",
				Flags:     []cli.Flag{ttlFlag},
				Action:    a.set,
			},
			{
				Name:      "add",
				Usage:     "store VALUE under KEY only if KEY is absent",
				ArgsUsage: "KEY VALUE",
				Flags:     []cli.Flag{ttlFlag},
				Action:    a.add,
			},
			{
				Name:      "del",
				Usage:     "remove one or more keys",
				ArgsUsage: "KEY [KEY...]",
				Action:    a.del,
			},
			{
				Name:   "flush",
				Usage:  "remove every entry from the backend",
				Action: a.flush,
			},
			{
				Name:   "ping",
				Usage:  "check that the backend is reachable",
				Action: a.ping,
			},
		},
	}
}

func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cmd.String("log-level"))); err != nil {
		return ctx, fmt.Errorf("invalid log level %q: %w", cmd.String("log-level"), err)
	}

	a.logger = slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: level}))
	a.svc = cacheservice.New(
		cacheservice.WithConfigPath(cmd.String("config")),
		cacheservice.WithLogger(a.logger),
	)
	return ctx, nil
}

func (a *app) after(ctx context.Context, _ *cli.Command) error {
	if a.svc == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return lifecycle.StopAll(shutdownCtx, a.svc)
}

func (a *app) get(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return errUsage
	}

	var value any
	found, err := a.svc.Get(ctx, cmd.Args().First(), &value)
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintln(a.out, "(nil)")
		return nil
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}
	fmt.Fprintln(a.out, string(encoded))
	return nil
}

func (a *app) set(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 2 {
		return errUsage
	}
	if err := a.svc.Insert(ctx, cmd.Args().Get(0), parseValue(cmd.Args().Get(1)), cmd.Duration("ttl")); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "OK")
	return nil
}

func (a *app) add(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 2 {
		return errUsage
	}
	added, err := a.svc.Add(ctx, cmd.Args().Get(0), parseValue(cmd.Args().Get(1)), cmd.Duration("ttl"))
	if err != nil {
		return err
	}
	if !added {
		fmt.Fprintln(a.out, "(exists)")
		return nil
	}
	fmt.Fprintln(a.out, "OK")
	return nil
}

func (a *app) del(ctx context.Context, cmd *cli.Command) error {
	keys := cmd.Args().Slice()
	if len(keys) == 0 {
		return errUsage
	}

	var (
		removed bool
		err     error
	)
	if len(keys) == 1 {
		removed, err = a.svc.Remove(ctx, keys[0])
	} else {
		removed, err = a.svc.RemoveBatch(ctx, keys)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, removed)
	return nil
}

func (a *app) flush(ctx context.Context, _ *cli.Command) error {
	if err := a.svc.Clean(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "OK")
	return nil
}

func (a *app) ping(ctx context.Context, _ *cli.Command) error {
	if err := a.svc.Ping(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "PONG", a.svc.Variant())
	return nil
}

// parseValue stores JSON arguments as decoded values and anything else as
// a plain string.
func parseValue(raw string) any {
	if !json.Valid([]byte(raw)) {
		return raw
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil || value == nil {
		return raw
	}
	return value
}
