package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"

	"clipforge/internal/config"
	"clipforge/internal/director"
	"clipforge/internal/http/httpapi"
	"clipforge/internal/infra"
	"clipforge/internal/infra/credentials"
	"clipforge/internal/infra/geoip"
	"clipforge/internal/jobstore"
	appmiddleware "clipforge/internal/middleware"
	"clipforge/internal/projectstore"
	"clipforge/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: db connection failed")
	}
	defer dbpool.Close()
	runner := infra.NewSQLRunner(dbpool, logger)

	redisClient, err := infra.NewRedisClient(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: redis connection failed")
	}
	defer redisClient.Close()

	amqpConn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: amqp connection failed")
	}
	defer amqpConn.Close()
	publisher, err := queue.NewPublisher(amqpConn)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to declare dispatch queue")
	}
	defer publisher.Close()

	countryResolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("api: geoip resolver unavailable, locale defaults fall back to headers only")
	}
	if closer, ok := countryResolver.(io.Closer); ok {
		defer closer.Close()
	}
	var countryLookup appmiddleware.CountryLookup
	if countryResolver != nil {
		countryLookup = countryResolver.CountryCode
	}

	app := httpapi.NewApp(
		projectstore.New(runner),
		jobstore.New(dbpool, runner),
		credentials.NewStore(runner),
		director.New(),
		publisher,
		dbpool,
		redisClient,
		logger,
	)
	router := httpapi.NewRouter(app, httpapi.RouterConfig{
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		DefaultLocale:  cfg.DefaultLocale,
		CountryLookup:  countryLookup,
	})

	server := infra.NewHTTPServer(cfg.Port, cfg.HTTPReadTimeout, cfg.HTTPWriteTimeout, cfg.HTTPIdleTimeout, router)

	go func() {
		logger.Info().Msgf("api: listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: failed to shutdown server cleanly")
	}
	logger.Info().Msg("api: stopped")
}
