package notification

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(New),
	fx.Invoke(StartListener),
)

// StartListener runs the listener for the lifetime of the application.
func StartListener(lc fx.Lifecycle, listener *Listener, log *zap.Logger) {
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, c := context.WithCancel(context.Background())
			cancel = c
			done = make(chan struct{})
			go func() {
				defer close(done)
				if err := listener.Run(ctx); err != nil {
					log.Error("notification listener stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
