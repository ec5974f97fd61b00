package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jonathan/freelance-market/internal/config"
	"github.com/jonathan/freelance-market/internal/gateway"
	"github.com/jonathan/freelance-market/internal/lifecycle"
	"github.com/jonathan/freelance-market/internal/server"
	"github.com/jonathan/freelance-market/internal/server/ratelimit"
)

var (
	servePort      int
	serveMigrateUp bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that exposes the marketplace REST API.

When RECONCILE_SCHEDULE is set, in-progress jobs are reconciled on that cron
schedule while the server runs.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	serveCmd.Flags().BoolVar(&serveMigrateUp, "migrate", false, "Apply pending migrations before starting")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := loadEnv()
	if err != nil {
		return err
	}
	if servePort != 0 {
		e.cfg.Port = servePort
	}

	jwtConfig, err := config.NewJWTConfig(e.cfg)
	if err != nil {
		return err
	}
	passwordConfig, err := config.NewPasswordConfig(e.cfg)
	if err != nil {
		return err
	}
	limits, err := ratelimit.LoadConfig()
	if err != nil {
		return err
	}
	limits = limits.WithOverrides(e.policy.RateLimits)

	gw, err := gateway.New(e.cfg.Gateway())
	if err != nil {
		return fmt.Errorf("failed to configure payment gateway: %w", err)
	}

	if serveMigrateUp {
		if err := migrateUp(e); err != nil {
			return err
		}
	}

	database, err := e.connect(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	deliverer, closeDeliverer, err := e.deliverer(ctx)
	if err != nil {
		return err
	}
	defer closeDeliverer()

	engine := lifecycle.New(database, gw,
		lifecycle.WithLogger(e.log),
		lifecycle.WithCurrency(e.cfg.Currency),
		lifecycle.WithDeliverer(deliverer),
		lifecycle.WithDeliveryConcurrency(int64(e.cfg.DeliveryConcurrency)),
		lifecycle.WithTemplates(e.policy.Templates),
	)

	if e.cfg.ReconcileSchedule != "" {
		scheduler, err := scheduleReconcile(ctx, engine.Reconciler, e.cfg.ReconcileSchedule, e.log)
		if err != nil {
			return err
		}
		defer func() { <-scheduler.Stop().Done() }()
	}

	srv, err := server.New(server.Config{
		Port:      e.cfg.Port,
		Store:     database,
		Engine:    engine,
		JWT:       jwtConfig,
		Passwords: passwordConfig,
		RateLimit: limits,
		Log:       e.log,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start(ctx)
}

// reconcileTimeout bounds one scheduled pass.
const reconcileTimeout = 5 * time.Minute

// scheduleReconcile starts a cron scheduler that runs the reconciler on spec.
// Overlapping runs are skipped.
func scheduleReconcile(ctx context.Context, r *lifecycle.Reconciler, spec string, log *logrus.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, reconcileTimeout)
		defer cancel()

		report, err := r.Run(runCtx)
		if err != nil {
			log.WithError(err).Error("scheduled reconciliation failed")
			return
		}
		log.WithFields(logrus.Fields{
			"scanned":      report.Scanned,
			"repaired":     len(report.Repaired),
			"unrepairable": len(report.Unrepairable),
		}).Info("scheduled reconciliation finished")
	})
	if err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", spec, err)
	}
	c.Start()
	log.WithField("schedule", spec).Info("reconciliation scheduled")
	return c, nil
}
