package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"quicknotes/internal/handler"
	"quicknotes/internal/poller"
	"quicknotes/internal/websocket"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type uiOptions struct {
	addr string
}

func NewUICommand(rootOpts *RootOptions) *cobra.Command {
	opts := &uiOptions{}

	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Serve the live view to local UIs over a WebSocket",
		Long: `Keep the view in step with the store server and serve it on
ws://<addr>/ws. Connected UIs receive a full snapshot on every change and
may send create, update, delete and refresh intents. Prometheus metrics are
served on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUI(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (default UI_ADDR)")

	return cmd
}

func runUI(cmd *cobra.Command, rootOpts *RootOptions, opts *uiOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, rootOpts)
	if err != nil {
		return err
	}
	defer a.close()

	// cancelled before close, so ending the session on the way out is not
	// mistaken for an expired token
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	scheduler := poller.New(ctx, a.backend, a.engine, &poller.Config{
		Interval: a.cfg.Client.PollInterval,
		Timeout:  a.cfg.Client.RequestTimeout,
		Metrics:  poller.NewMetrics(a.registry),
	})
	a.gate.OnChange(scheduler.SetOwner)
	a.gate.OnChange(func(ownerKey string) {
		if ownerKey != "" || runCtx.Err() != nil {
			return
		}
		// the access token ran out; try the refresh token before giving up
		go func() {
			if err := a.resume(runCtx); err != nil {
				glog.Warningf("session ended: %v", err)
			}
		}()
	})

	manager := websocket.NewManager(nil)
	bridge := websocket.NewBridge(manager, a.engine, scheduler)
	a.engine.OnChange(bridge.PublishView)

	if err := a.resume(runCtx); err != nil {
		return err
	}

	addr := opts.addr
	if addr == "" {
		addr = a.cfg.Client.UIAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler.NewUIRouter(handler.NewUIHandler(manager), promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		manager.Run(gctx)
		return nil
	})
	g.Go(func() error {
		bridge.ForwardNotices(gctx, a.engine.Notifications())
		return nil
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ui server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			glog.Warningf("ui server shutdown: %v", err)
		}
		scheduler.Stop()
		return nil
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Serving notes on ws://%s/ws (Ctrl-C to stop)\n", addr)

	err = g.Wait()
	scheduler.Wait()
	return err
}
