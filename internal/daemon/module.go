// Package daemon assembles the session process from its parts.
package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/rochat/chatcube/internal/bus"
	"github.com/rochat/chatcube/internal/client"
	"github.com/rochat/chatcube/internal/config"
	"github.com/rochat/chatcube/internal/lock"
	"github.com/rochat/chatcube/internal/logging"
	"github.com/rochat/chatcube/internal/runloop"
)

// Params carries the command line overrides into the graph.
type Params struct {
	// Home overrides the data directory. Empty picks the default.
	Home string
}

// Module wires the full session graph.
func Module(p Params) fx.Option {
	return fx.Options(
		fx.Provide(
			func() (client.Paths, error) { return providePaths(p) },
			provideConfig,
			provideLogger,
			provideLock,
			provideBus,
			provideLoop,
			provideClient,
		),
		fx.Invoke(registerLifecycle),
	)
}

func providePaths(p Params) (client.Paths, error) {
	root := p.Home
	if root == "" {
		var err error
		if root, err = client.DefaultRoot(); err != nil {
			return client.Paths{}, err
		}
	}
	return client.NewPaths(root)
}

func provideConfig(paths client.Paths) (*config.Config, error) {
	return config.Load(paths.ConfigFile())
}

func provideLogger(paths client.Paths, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(paths.LogDir(), cfg.Log.Level, cfg.Log.Console)
}

func provideLock(paths client.Paths) (*lock.Lock, error) {
	return lock.Acquire(paths.LockFile())
}

func provideBus() *bus.Bus { return bus.New() }

func provideLoop() *runloop.Loop { return runloop.New() }

func provideClient(cfg *config.Config, paths client.Paths, loop *runloop.Loop, b *bus.Bus, log *zap.Logger) (*client.Client, error) {
	return client.New(cfg, paths, loop, b, log)
}

func registerLifecycle(lc fx.Lifecycle, loop *runloop.Loop, c *client.Client, l *lock.Lock, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			loop.Start(context.Background())
			errc := make(chan error, 1)
			loop.Post(func() {
				if err := c.Start(func(err error) { errc <- err }); err != nil {
					errc <- err
				}
			})
			select {
			case err := <-errc:
				if err == client.ErrNotAuthenticated {
					log.Warn("no stored session, waiting for login")
					return nil
				}
				return err
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		OnStop: func(context.Context) error {
			c.Stop()
			loop.Stop()
			_ = log.Sync()
			return l.Release()
		},
	})
}
