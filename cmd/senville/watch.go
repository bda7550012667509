package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/device"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/logging"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/metrics"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/ui"
)

// Watch command flags
var (
	watchInterval time.Duration
	watchListen   string
	watchCount    int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Refresh a unit's state periodically",
	Long: `Keep a session open and print the unit's state every interval.

With --metrics-listen the state and request counters are also exported in
Prometheus format on /metrics. Dropped connections are re-established on
the next refresh.`,
	Example: `  # Print the state every 5 seconds
  senville watch --device bedroom

  # Export metrics for Prometheus
  senville watch --device bedroom --interval 30s --metrics-listen :9101`,
	RunE: runWatch,
}

func init() {
	addTargetFlags(watchCmd)
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Second, "Time between refreshes")
	watchCmd.Flags().StringVar(&watchListen, "metrics-listen", "", "Serve Prometheus metrics on this address (e.g. :9101)")
	watchCmd.Flags().IntVar(&watchCount, "count", 0, "Stop after this many refreshes (0 runs until interrupted)")
	watchCmd.Flags().StringVar(&unitFlag, "unit", "", "Temperature unit, C or F (default from preferences)")
	rootCmd.AddCommand(watchCmd)
}

// serveMetrics exposes reg on /metrics until ctx is done.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		logging.Info("Serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics server failed", zap.Error(err))
		}
	}()
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchInterval <= 0 {
		return midea.NewValidationError("--interval must be positive")
	}
	ctx := cmd.Context()

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	unit, err := temperatureUnit(unitFlag, reg.Preferences)
	if err != nil {
		return err
	}

	collector := metrics.New()
	if watchListen != "" {
		promReg := prometheus.NewRegistry()
		if err := collector.Register(promReg); err != nil {
			return err
		}
		serveMetrics(ctx, watchListen, promReg)
	}
	configure := func(o *device.Options) { o.Metrics = collector }

	p := ui.NewPrinter(cmd.OutOrStdout())
	metricsAddr := "off"
	if watchListen != "" {
		metricsAddr = watchListen + "/metrics"
	}
	p.PrintHeader("Watching unit", "senville watch",
		ui.Param{Key: "Interval", Value: watchInterval.String()},
		ui.Param{Key: "Metrics", Value: metricsAddr},
	)

	var s *session
	defer func() {
		if s != nil {
			_ = s.Client.Close()
		}
	}()

	poll := func() error {
		if s == nil {
			err := withRetry(ctx, retries, func() error {
				var err error
				s, err = openSession(ctx, configure)
				return err
			})
			if err != nil {
				return err
			}
		}
		state, err := s.Client.Status(ctx)
		if err != nil {
			_ = s.Client.Close()
			s = nil
			return err
		}
		p.Printf("%s  %s  %s\n", time.Now().Format(time.TimeOnly), s.Name, ui.StatusSummary(state, unit))
		return nil
	}

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		if err := poll(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !midea.IsRetryable(err) {
				return err
			}
			logging.Warn("Refresh failed", zap.Error(err))
			p.Printf("%s  %s\n", time.Now().Format(time.TimeOnly), midea.GetShortErrorMessage(err))
		}
		if watchCount > 0 && n >= watchCount {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
