package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/NelsonFranklinWere/emil/backend/internal/access"
	"github.com/NelsonFranklinWere/emil/backend/internal/alert"
	"github.com/NelsonFranklinWere/emil/backend/internal/config"
	"github.com/NelsonFranklinWere/emil/backend/internal/domain"
	"github.com/NelsonFranklinWere/emil/backend/internal/gate"
	"github.com/NelsonFranklinWere/emil/backend/internal/handler"
	"github.com/NelsonFranklinWere/emil/backend/internal/metrics"
	"github.com/NelsonFranklinWere/emil/backend/internal/repository"
	"github.com/NelsonFranklinWere/emil/backend/internal/token"
)

func main() {
	/**********************************************
	 * logger
	 **********************************************/
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	/**********************************************
	 * configuration
	 **********************************************/
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return
	}
	if err := cfg.ValidateGateway(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return
	}

	m := metrics.New()
	// metrics stay inline; database and queue sinks go through the async buffer
	var sinks gate.Recorders

	/**********************************************
	 * audit trail (optional)
	 **********************************************/
	var events handler.EventLister
	if cfg.Database.DSN != "" {
		dbpool, err := sql.Open("pgx", cfg.Database.DSN)
		if err != nil {
			logger.Error("failed to create database pool", "error", err)
			return
		}
		defer dbpool.Close()

		dbpool.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		dbpool.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		dbpool.SetConnMaxIdleTime(time.Duration(cfg.Database.MaxIdleTime) * time.Second)

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.ConnectTimeout)*time.Second)
		defer cancel()

		// sql.Open does not connect
		if err := dbpool.PingContext(ctx); err != nil {
			logger.Error("failed to connect to database", "error", err)
			return
		}

		repo := repository.NewRepository(dbpool, time.Duration(cfg.Database.QueryTimeout)*time.Second)
		events = repo
		sinks = append(sinks, gate.RecorderFunc(func(ctx context.Context, event *domain.AccessEvent) {
			if err := repo.InsertAccessEvent(context.WithoutCancel(ctx), event); err != nil {
				logger.Error("failed to store access event", "event", event.ID, "error", err)
			}
		}))
	}

	/**********************************************
	 * security alerts (optional)
	 **********************************************/
	if cfg.RabbitMQ.DSN != "" {
		conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			return
		}
		defer conn.Close()

		ch, err := conn.Channel()
		if err != nil {
			logger.Error("failed to open channel", "error", err)
			return
		}
		defer ch.Close()

		if _, err := alert.DeclareQueue(ch, cfg.RabbitMQ.AlertQueue); err != nil {
			logger.Error("failed to declare queue", "error", err)
			return
		}

		sinks = append(sinks, alert.NewPublisher(ch, cfg.RabbitMQ.AlertQueue,
			time.Duration(cfg.RabbitMQ.PublishTimeout)*time.Second, logger))
	}

	recorders := gate.Recorders{m}
	var async *gate.AsyncRecorder
	if len(sinks) > 0 {
		async = gate.NewAsyncRecorder(sinks, cfg.Gate.EventBuffer, m.Dropped, logger)
		recorders = append(recorders, async)
	}

	/**********************************************
	 * access gate
	 **********************************************/
	codec, err := token.NewCodec(token.Config{
		Secret: cfg.Gate.Secret,
		Issuer: cfg.Gate.Issuer,
		Leeway: cfg.Gate.Leeway,
	})
	if err != nil {
		logger.Error("failed to create token codec", "error", err)
		return
	}

	allow, err := gate.ParseAllowList(cfg.Gate.AdminIPWhitelist)
	if err != nil {
		logger.Error("invalid admin allow-list", "error", err)
		return
	}

	g, err := gate.New(codec, gate.Options{
		Namespace:     access.NewNamespace(cfg.Gate.ProtectedPrefixes...),
		RequiredRoles: []domain.Role{domain.RoleAdmin},
		CookieName:    cfg.Gate.CookieName,
		SignInPath:    cfg.Gate.SignInPath,
		ForbiddenPath: cfg.Gate.ForbiddenPath,
		AllowList:     allow,
		SecureCookie:  cfg.Environment == "production",
	},
		gate.WithLogger(logger),
		gate.WithRecorder(recorders),
		gate.WithRateLimit(cfg.Gate.RatePerSecond, cfg.Gate.RateBurst),
	)
	if err != nil {
		logger.Error("failed to create access gate", "error", err)
		return
	}

	/**********************************************
	 * handler
	 **********************************************/
	proxy, err := handler.NewUpstreamProxy(cfg.Upstream.URL, logger)
	if err != nil {
		logger.Error("invalid upstream URL", "error", err)
		return
	}

	handler, err := handler.NewHandler(cfg, g, proxy, m, events, logger)
	if err != nil {
		logger.Error("failed to create handler", "error", err)
		return
	}
	handler.RegisterRoutes()

	/**********************************************
	 * HTTP server
	 **********************************************/
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      handler.Mux,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting gateway", "port", cfg.Server.Port, "upstream", cfg.Upstream.URL, "protected", cfg.Gate.ProtectedPrefixes)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", slog.String("error", err.Error()))
			return
		}
	}()

	<-quit
	logger.Info("shutting down gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", slog.String("error", err.Error()))
	}
	if async != nil {
		if err := async.Close(ctx); err != nil {
			logger.Error("failed to flush access events", "error", err)
		}
	}
	logger.Info("gateway stopped")
}
