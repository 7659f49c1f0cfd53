package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonto42/nano-midea/fanout/internal/access"
	"github.com/anonto42/nano-midea/fanout/internal/events"
	"github.com/anonto42/nano-midea/fanout/internal/logging"
	"github.com/anonto42/nano-midea/fanout/internal/mailer"
	"github.com/anonto42/nano-midea/fanout/internal/middleware"
	"github.com/anonto42/nano-midea/fanout/internal/repositories"
	"github.com/anonto42/nano-midea/fanout/internal/router"
	"github.com/anonto42/nano-midea/fanout/internal/transport"
	"github.com/anonto42/nano-midea/fanout/pkg/config"
	"github.com/anonto42/nano-midea/fanout/pkg/firebase"
	"github.com/anonto42/nano-midea/fanout/validators"
	"github.com/felixgeelhaar/bolt/v3"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// stores are the repositories the engine runs on.
type stores struct {
	subscriptions repositories.SubscriptionRepository
	events        repositories.EventRepository
	notifications repositories.NotificationRepository
	members       repositories.MemberRepository
	joiner        repositories.Joiner
	redis         *redis.Client
	close         func()
}

func main() {
	cfg := config.Load()
	logger := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stdout})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		fatal(logger, err, "Failed to initialize databases")
	}
	defer st.close()

	hub := transport.NewHub(logger)
	var socket transport.Socket = hub
	if st.redis != nil {
		// every instance publishes to redis and relays what it hears to its
		// own websocket clients
		rs := transport.NewRedisSocket(st.redis, cfg.RedisChannel)
		socket = rs
		go func() {
			if err := rs.Forward(ctx, hub); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("redis relay stopped")
			}
		}()
	}

	var notifier events.Notifier
	if cfg.SMTPAddr != "" {
		notifier = mailer.NewSMTPNotifier(mailer.Config{
			Addr:     cfg.SMTPAddr,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}

	variants := events.ClimbingVariants()
	if cfg.Domain == "dataset" {
		variants = events.DatasetVariants()
	}

	engine, err := events.New(events.Config{
		Subscriptions:   st.subscriptions,
		Events:          st.events,
		Notifications:   st.notifications,
		Members:         st.members,
		Joiner:          st.joiner,
		Access:          access.NewPolicy(st.subscriptions),
		Socket:          socket,
		Mailer:          notifier,
		Variants:        variants,
		DefaultMethod:   events.Method(cfg.ResolveMethod),
		DeliveryEnabled: cfg.DeliveryEnabled(),
		Logger:          logger,
	})
	if err != nil {
		fatal(logger, err, "Failed to create engine")
	}

	auth := middleware.JWTAuthMiddleware(cfg.JWTSecret)
	if cfg.AuthMode == "firebase" {
		app, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
		if err != nil {
			fatal(logger, err, "Failed to initialize Firebase")
		}
		auth = middleware.FirebaseAuthMiddleware(app.AuthClient)
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = validators.NewValidator()
	config.SetupMiddleware(e, logger)
	router.SetupRoutes(e, router.Dependencies{
		Engine:        engine,
		Subscriptions: st.subscriptions,
		Events:        st.events,
		Notifications: st.notifications,
		Hub:           hub,
		Auth:          auth,
		Logger:        logger,
	})

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, err, "server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
	engine.Drain()
}

// openStores connects MongoDB, PostgreSQL and Redis, or falls back to the
// in-memory repositories in development when MONGO_URI is unset.
func openStores(ctx context.Context, cfg *config.Config, logger *bolt.Logger) (*stores, error) {
	if cfg.InMemory() {
		logger.Warn().Msg("MONGO_URI not set, using in-memory repositories")
		mem := repositories.NewMemory()
		return &stores{
			subscriptions: mem.Subscriptions,
			events:        mem.Events,
			notifications: mem.Notifications,
			members:       mem.Members,
			joiner:        mem.Joiner,
			close:         func() {},
		}, nil
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	mdb := db.Mongo.Database(cfg.MongoDatabase)

	subscriptions := repositories.NewMongoSubscriptionRepository(mdb)
	notifications := repositories.NewMongoNotificationRepository(mdb)
	if err := subscriptions.EnsureIndexes(ctx); err != nil {
		db.CloseDB()
		return nil, err
	}
	if err := notifications.EnsureIndexes(ctx); err != nil {
		db.CloseDB()
		return nil, err
	}

	members := repositories.NewPostgresMemberRepository(db.Postgres)
	return &stores{
		subscriptions: subscriptions,
		events:        repositories.NewMongoEventRepository(mdb),
		notifications: notifications,
		members:       members,
		joiner:        repositories.NewMongoJoiner(mdb, members),
		redis:         db.Redis,
		close:         db.CloseDB,
	}, nil
}

func fatal(logger *bolt.Logger, err error, msg string) {
	logger.Error().Err(err).Msg(msg)
	os.Exit(1)
}
