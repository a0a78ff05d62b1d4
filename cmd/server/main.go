// server runs the fleet-management HTTP API and the gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"fleet-management/backend/internal/audit"
	audithandler "fleet-management/backend/internal/audit/handler"
	auditrepo "fleet-management/backend/internal/audit/repository"
	"fleet-management/backend/internal/config"
	"fleet-management/backend/internal/db"
	healthhandler "fleet-management/backend/internal/health/handler"
	identityhandler "fleet-management/backend/internal/identity/handler"
	identityservice "fleet-management/backend/internal/identity/service"
	"fleet-management/backend/internal/logger"
	"fleet-management/backend/internal/metrics"
	"fleet-management/backend/internal/platform/rbac"
	"fleet-management/backend/internal/security"
	"fleet-management/backend/internal/server"
	"fleet-management/backend/internal/server/middleware"
	sessionrepo "fleet-management/backend/internal/session/repository"
	"fleet-management/backend/internal/telemetry"
	telemetryotel "fleet-management/backend/internal/telemetry/otel"
	"fleet-management/backend/internal/telemetry/producer"
	"fleet-management/backend/internal/token"
	userrepo "fleet-management/backend/internal/user/repository"
	vehiclehandler "fleet-management/backend/internal/vehicle/handler"
	vehiclerepo "fleet-management/backend/internal/vehicle/repository"
	vehicleservice "fleet-management/backend/internal/vehicle/service"
)

const serviceName = "fleet-management"

// sessionKeyPrefix namespaces refresh-token hashes in Redis.
const sessionKeyPrefix = "fleet:session"

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("config")
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat, serviceName, nil)
	zerolog.DefaultContextLogger = &log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceName,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.DefaultConnectOptions)
	if err != nil {
		return err
	}
	defer pool.Close()

	var sessions interface {
		token.SessionStore
		identityservice.SessionStore
	}
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		sessions = sessionrepo.NewRedisStore(client, sessionKeyPrefix, cfg.RefreshTTL())
	default:
		sessions = sessionrepo.NewPostgresStore(pool)
	}

	tokens, err := token.NewService(security.NewTokenCodec(), sessions, token.Config{
		AccessSecret:  []byte(cfg.AccessTokenSecret),
		AccessTTL:     cfg.AccessTTL(),
		RefreshSecret: []byte(cfg.RefreshTokenSecret),
		RefreshTTL:    cfg.RefreshTTL(),
	})
	if err != nil {
		return err
	}

	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	kafkaProducer, err := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.AuthEventsTopic)
	if err != nil {
		return err
	}
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
		log.Info().Str("topic", kafkaProducer.Topic()).Msg("auth event stream enabled")
	}
	events := telemetry.Multi(emitters...)

	authz, err := rbac.NewAuthorizer(ctx)
	if err != nil {
		return err
	}

	m := metrics.New()
	users := userrepo.NewPostgresRepository(pool)
	auditLogs := auditrepo.NewPostgresRepository(pool)
	auditLogger := audit.NewLogger(auditLogs, middleware.ClientIP)
	guard := middleware.NewGuard(tokens, users, m)
	if cfg.SessionStore == config.SessionStorePostgres {
		guard = guard.WithUserHash()
	}

	authSvc := identityservice.NewAuthService(users, sessions, security.NewHasher(cfg.BcryptCost), tokens, auditLogger, events, m)
	vehicleSvc := vehicleservice.NewService(vehiclerepo.NewPostgresRepository(pool), users)
	checker := healthhandler.NewChecker(pool, authz)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := server.NewRouter(server.Deps{
		Log:       log,
		Metrics:   m,
		Auth:      guard.RequireAuth(),
		Checker:   authz,
		Audit:     auditLogger,
		Identity:  identityhandler.NewHandler(authSvc, identityhandler.CookieConfig{MaxAge: tokens.RefreshTTL(), Secure: cfg.IsProduction()}),
		Vehicles:  vehiclehandler.NewHandler(vehicleSvc),
		AuditLogs: audithandler.NewHandler(auditLogs),
		Health:    healthhandler.NewHTTPHandler(checker),
	})
	httpSrv := server.NewHTTPServer(cfg.HTTPAddr, router)

	monitor := healthhandler.NewMonitor(checker, log)
	grpcSrv := server.NewGRPCServer(monitor.Server())
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	probeCtx, stopProbes := context.WithCancel(ctx)
	defer stopProbes()
	go monitor.Run(probeCtx, healthhandler.DefaultProbeInterval)

	errc := make(chan error, 2)
	go func() {
		log.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC health server listening")
		errc <- grpcSrv.Serve(lis)
	}()
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("env", cfg.Env).Msg("HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errc:
		log.Error().Err(err).Msg("server failed, shutting down")
	}

	stopProbes()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	grpcSrv.GracefulStop()

	// let in-flight async emits finish before the producer closes
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := kafkaProducer.Close(); err != nil {
		log.Warn().Err(err).Msg("kafka producer close")
	}
	log.Info().Msg("stopped")
	return nil
}
