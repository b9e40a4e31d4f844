package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/tablehold/internal/auth"
	"github.com/example/tablehold/internal/booking"
	"github.com/example/tablehold/internal/bookings"
	"github.com/example/tablehold/internal/catalog"
	"github.com/example/tablehold/internal/config"
	"github.com/example/tablehold/internal/crypto"
	"github.com/example/tablehold/internal/db"
	"github.com/example/tablehold/internal/domain/reservation"
	"github.com/example/tablehold/internal/events"
	"github.com/example/tablehold/internal/logging"
	"github.com/example/tablehold/internal/migrate"
	"github.com/example/tablehold/internal/payment"
	"github.com/example/tablehold/internal/scheduler"
	"github.com/example/tablehold/internal/web"
)

const (
	catalogCacheSize = 512
	catalogCacheTTL  = time.Minute
)

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the booking API and the hold sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logging.New(cfg.LogLevel, cfg.LogPretty)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return runServer(ctx, cfg, log)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	defaults := defaultsFrom(cfg)
	opts := []booking.Option{
		booking.WithHoldTTL(cfg.HoldTTL),
		booking.WithLockTimeout(cfg.SlotLockTimeout),
		booking.WithLogger(log),
	}

	var (
		cat      reservation.RestaurantCatalog = catalog.NewStatic(defaults)
		authz    *auth.Store
		payments reservation.PaymentGateway = payment.NewFake()
	)

	if cfg.Persistent() {
		d, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.Ping(ctx); err != nil {
			return fmt.Errorf("db ping: %w", err)
		}
		n, err := migrate.Up(ctx, d)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info().Int("applied", n).Msg("database migrated")
		}

		aead, err := crypto.New(cfg.PaymentEncKey)
		if err != nil {
			return err
		}
		cat = catalog.NewCached(catalog.NewPostgres(d, defaults), catalogCacheSize, catalogCacheTTL)
		opts = append(opts, booking.WithRepository(bookings.NewRepo(d, aead)))

		if cfg.SessionsEnabled() {
			authz = auth.NewStore(auth.NewPGUsers(d), cfg.CookieHashKey, cfg.CookieBlockKey)
		}
	} else {
		log.Warn().Msg("DATABASE_URL not set; holds and reservations live in memory only")
		if cfg.SessionsEnabled() {
			log.Warn().Msg("sessions need DATABASE_URL for user accounts; login disabled")
		}
	}

	if cfg.PaymentGatewayURL != "" {
		payments = payment.NewHTTPGateway(cfg.PaymentGatewayURL, cfg.PaymentGatewayToken)
	} else {
		log.Warn().Msg("PAYMENT_GATEWAY_URL not set; using the fake gateway")
	}

	if cfg.RabbitMQURL != "" {
		pub, err := events.NewRabbit(cfg.RabbitMQURL, cfg.EventsExchange)
		if err != nil {
			return err
		}
		defer pub.Close()
		opts = append(opts, booking.WithPublisher(pub))
	}

	svc := booking.New(cat, payments, opts...)
	defer svc.Close()

	if _, err := svc.Recover(ctx); err != nil {
		return fmt.Errorf("recover: %w", err)
	}

	ws := &web.Server{
		Engine:      svc,
		Auth:        authz,
		AdminToken:  cfg.AdminToken,
		Log:         log.With().Str("component", "web").Logger(),
		CORSOrigins: cfg.CORSOrigins,
	}
	sweeper := &scheduler.Scheduler{
		Holds:    svc,
		Interval: cfg.SweepInterval,
		Log:      log.With().Str("component", "sweeper").Logger(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return web.Start(gctx, cfg.ListenAddr, ws.Routes(), log)
	})
	g.Go(func() error {
		if err := sweeper.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	return g.Wait()
}

func defaultsFrom(cfg config.Config) catalog.Defaults {
	return catalog.Defaults{
		TotalTables:      cfg.DefaultTotalTables,
		DepositPerPerson: cfg.DefaultDepositCents,
		Timezone:         cfg.DefaultTimezone,
		SlotTimes:        cfg.DefaultSlotTimes,
	}
}
