package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"go-notification-ws/internal/application/facade"
	"go-notification-ws/internal/infrastructure/auth"
	"go-notification-ws/internal/infrastructure/config"
	"go-notification-ws/internal/infrastructure/hub"
	"go-notification-ws/internal/infrastructure/logger"
	"go-notification-ws/internal/infrastructure/metrics"
	"go-notification-ws/internal/infrastructure/relay"
	"go-notification-ws/internal/infrastructure/server"
	"go-notification-ws/internal/interfaces/websocket"
)

func main() {
	configFile := pflag.StringP("config", "c", "", "path to config file")
	pflag.String("addr", ":8080", "HTTP listen address")
	pflag.Parse()

	v := config.New(*configFile)
	_ = v.BindPFlag("server.addr", pflag.Lookup("addr"))

	cfg, err := config.Load(v)
	if err != nil {
		logger.NewLogrusLogger(logger.NewDefaultConfig()).Fatalf("failed to load config: %v", err)
	}
	lCfg, err := cfg.LoggerConfig()
	if err != nil {
		logger.NewLogrusLogger(logger.NewDefaultConfig()).Fatalf("invalid log config: %v", err)
	}
	log := logger.NewLogrusLogger(lCfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if lCfg.Level != logger.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	config.WatchLogLevel(v, log)

	ctx := context.Background()
	sctx := WithSignal(ctx)

	m := metrics.New(prometheus.NewRegistry())
	hubInstance := hub.New(log, m)

	// Start the hub first
	if err := hubInstance.Start(ctx); err != nil {
		log.Errorf("failed to start hub: %v", err)
		return
	}
	broadcaster := hub.NewBroadcaster(hubInstance, log, m)

	var publisher hub.Publisher = broadcaster
	var redisRelay *relay.Redis
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisRelay = relay.NewRedis(redisClient, cfg.Redis.Channel, broadcaster, m, log)
		publisher = redisRelay
		log.Infof("broadcasts relayed through redis %s channel %s", cfg.Redis.Addr, cfg.Redis.Channel)
	}

	verifier := auth.NewJWTVerifier(auth.VerifierConfig{
		Issuer:      cfg.Auth.Issuer,
		Audience:    cfg.Auth.Audience,
		Secret:      cfg.Auth.Secret,
		JWKSURL:     cfg.Auth.JWKSURL,
		JWKSTimeout: cfg.Auth.JWKSTimeout,
	})

	router := InitRouter(routerDeps{
		cfg:           cfg,
		hub:           hubInstance,
		verifier:      verifier,
		notifications: facade.NewNotificationApplicationService(publisher, log),
		wsOptions:     webSocketOptions(cfg.Hub),
		metrics:       m,
		log:           log,
	})
	handler := websocket.UpgradeGuard(cfg.Server.WSPath, m, log, router)

	httpSrv := server.NewHTTPServer(handler, server.HTTPConfig{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, log)

	app := newApplication(log, httpSrv, hubInstance, redisRelay, redisClient, cfg.Server.ShutdownTimeout)
	if err := app.Run(sctx); err != nil {
		log.Errorf("failed to run application: %v", err)
	}
}

func webSocketOptions(c config.HubConfig) hub.WebSocketOptions {
	return hub.WebSocketOptions{
		SendBuffer:   c.SendBuffer,
		WriteTimeout: c.WriteTimeout,
		PongWait:     c.PongWait,
		ReadLimit:    c.ReadLimit,
		ControlRate:  rate.Limit(c.ControlRate),
		ControlBurst: c.ControlBurst,
	}
}

type Application struct {
	logger          logger.Logger
	httpSrv         server.Server
	hub             *hub.Hub
	relay           *relay.Redis
	redis           *redis.Client
	shutdownTimeout time.Duration
}

func newApplication(
	logger logger.Logger,
	httpSrv *server.HTTPServer,
	hubInstance *hub.Hub,
	redisRelay *relay.Redis,
	redisClient *redis.Client,
	shutdownTimeout time.Duration,
) *Application {
	return &Application{
		logger:          logger.WithField("app", "notify"),
		httpSrv:         httpSrv,
		hub:             hubInstance,
		relay:           redisRelay,
		redis:           redisClient,
		shutdownTimeout: shutdownTimeout,
	}
}

func (app *Application) Run(ctx context.Context) error {
	eg := errgroup.Group{}

	eg.Go(func() error {
		return app.httpSrv.Start(ctx)
	})

	if app.relay != nil {
		eg.Go(func() error {
			return app.relay.Run(ctx)
		})
	}

	eg.Go(func() error {
		<-ctx.Done()

		gracefulshutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			app.shutdownTimeout,
		)
		defer cancel()

		// Stop hub first so upgraded connections release their handlers.
		if err := app.hub.Stop(gracefulshutdownCtx); err != nil {
			app.logger.Errorf("failed to stop hub: %v", err)
		}
		if app.redis != nil {
			if err := app.redis.Close(); err != nil {
				app.logger.Errorf("failed to close redis client: %v", err)
			}
		}

		return app.httpSrv.Stop(gracefulshutdownCtx)
	})

	return eg.Wait()
}

func WithSignal(pctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(pctx)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		<-sigc

		cancel()
	}()

	return ctx
}
