// Command watch subscribes to one channel of a notification server and
// logs every event it receives, reconnecting whenever the link drops.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"go-notification-ws/internal/infrastructure/auth"
	"go-notification-ws/internal/infrastructure/config"
	"go-notification-ws/internal/infrastructure/logger"
	"go-notification-ws/pkg/reconnect"
)

func main() {
	configFile := pflag.StringP("config", "c", "", "path to config file")
	pflag.String("url", "", "WebSocket endpoint, e.g. ws://localhost:8080/ws")
	pflag.String("channel", "", "channel to subscribe to")
	pflag.String("token", "", "bearer token; minted from auth.secret when empty")
	pflag.Duration("backoff", 0, "delay between reconnect attempts")
	pflag.Parse()

	v := config.New(*configFile)
	for flag, key := range map[string]string{
		"url":     "client.url",
		"channel": "client.channel",
		"token":   "client.token",
		"backoff": "client.backoff",
	} {
		if f := pflag.Lookup(flag); f != nil && f.Changed {
			_ = v.BindPFlag(key, f)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		logger.NewLogrusLogger(logger.NewDefaultConfig()).Fatalf("failed to load config: %v", err)
	}
	lCfg, err := cfg.LoggerConfig()
	if err != nil {
		logger.NewLogrusLogger(logger.NewDefaultConfig()).Fatalf("invalid log config: %v", err)
	}
	log := logger.NewLogrusLogger(lCfg).WithField("app", "watch")
	if err := cfg.ValidateClient(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	agent, err := reconnect.New(reconnect.Config{
		URL:     cfg.Client.URL,
		Channel: cfg.Client.Channel,
		Backoff: cfg.Client.Backoff,
		OnStateChange: func(s reconnect.State) {
			log.Infof("agent %s", s)
		},
	}, tokenSupplier(cfg), func(msg reconnect.Message) {
		log.WithFields(logger.Fields(msg)).Infof("event %s on %s", msg.Type(), cfg.Client.Channel)
	}, log)
	if err != nil {
		log.Fatalf("failed to create agent: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := agent.Start(ctx); err != nil {
		log.Fatalf("failed to start agent: %v", err)
	}
	<-ctx.Done()
	_ = agent.Close()
	<-agent.Done()
}

// tokenSupplier prefers a configured token and otherwise mints short-lived
// tokens with the shared secret.
func tokenSupplier(cfg *config.Config) reconnect.TokenSupplier {
	if cfg.Client.Token != "" {
		return reconnect.StaticToken(cfg.Client.Token)
	}
	m := auth.NewJWTManager(cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.Secret)
	return reconnect.TokenSupplierFunc(m.Supplier(cfg.Client.Subject, cfg.Client.TokenTTL))
}
