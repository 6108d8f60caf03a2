package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ircbridge/gateway/internal/adminhttp"
	"github.com/ircbridge/gateway/internal/config"
	"github.com/ircbridge/gateway/internal/fleet"
	"github.com/ircbridge/gateway/internal/gateway"
	"github.com/ircbridge/gateway/internal/logging"
	"github.com/ircbridge/gateway/internal/ratelimit"
)

func main() {
	os.Exit(run())
}

func run() int {
	for _, path := range []string{".env", "../../.env"} {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "usage: %s <irc-bind> <backend-host>\n", os.Args[0])
		return 0
	}
	ircBind := os.Args[1]
	backendAddr := os.Args[2]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	publisher, err := fleet.NewPublisher(cfg.FleetRedisAddr, cfg.FleetRedisPassword, instanceID())
	if err != nil {
		logging.Fatal(ctx, "fleet heartbeat setup failed", zap.Error(err))
	}
	defer publisher.Close()

	ln := &gateway.Listener{
		ServerName:  backendAddr, // the gateway impersonates a server named after the backend host
		BackendAddr: backendAddr,
		Rates: ratelimit.Rates{
			Join:    cfg.RateLimitJoin,
			Privmsg: cfg.RateLimitPrivmsg,
			Nick:    cfg.RateLimitNick,
		},
		DialBreaker: fleet.NewBackendDialBreaker(),
	}

	go publisher.Run(ctx, 30*time.Second, ln.ActiveSessions)

	var admin *adminhttp.Server
	if cfg.AdminHTTPAddr != "" {
		admin = adminhttp.New(publisher.RedisClient(), ln)
		go func() {
			if err := admin.ListenAndServe(ctx, cfg.AdminHTTPAddr); err != nil {
				logging.Error(ctx, "admin http server exited with error", zap.Error(err))
			}
		}()
	}

	logging.Info(ctx, "ircbridge listening", zap.String("irc_bind", ircBind), zap.String("backend_addr", backendAddr))

	if err := ln.Serve(ctx, ircBind); err != nil && ctx.Err() == nil {
		logging.Error(ctx, "listener exited with error", zap.Error(err))
		return 1
	}

	return 0
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil {
		return "ircbridge"
	}
	return host
}
