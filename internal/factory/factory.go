package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"safarapi-auth/internal/bucketing"
	"safarapi-auth/internal/client"
	"safarapi-auth/internal/config"
	"safarapi-auth/internal/hashing"
	redisrepo "safarapi-auth/internal/repository/redis"
	"safarapi-auth/internal/repository/scylla"
	"safarapi-auth/internal/service"
	"safarapi-auth/internal/sms"
	"safarapi-auth/internal/token"
	"safarapi-auth/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients
	redisClient       *client.RedisClient
	scyllaClient      *scylla.ScyllaClient
	kafkaProducer     *client.KafkaProducer
	clickhouseAuditor *client.ClickhouseAuditor

	// Managers
	hasher           *hashing.Hasher
	bucketingManager *bucketing.BucketingManager

	// Repositories and caches
	accountRepository scylla.AccountRepository
	otpRepository     scylla.OTPRepository
	imageRepository   scylla.ImageRepository
	rateLimitCache    *redisrepo.RateLimitCache
	tokenCache        *redisrepo.TokenCache

	// Services
	tokenIssuer *token.Issuer
	authService *service.AuthService

	closeOnce sync.Once
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{config: cfg}

	if err := factory.initializeClients(); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := factory.initializeServices(); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled),
		util.Bool("clickhouse_enabled", cfg.Clickhouse.Enabled),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Redis
	redisClient, err := client.NewRedisClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	f.redisClient = redisClient
	if err := f.redisClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}
	util.Info("Redis client initialized and healthy")

	// ScyllaDB
	scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("scylla: %w", err)
	}
	f.scyllaClient = scyllaClient
	if err := f.scyllaClient.HealthCheck(); err != nil {
		return fmt.Errorf("scylla health check: %w", err)
	}
	util.Info("ScyllaDB client initialized and healthy")

	// Kafka is optional; the protocol works without the fan-out.
	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without events", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
		}
	}

	// ClickHouse is optional; the protocol works without the audit sink.
	if f.config.Clickhouse.Enabled {
		if auditor, err := client.NewClickhouseAuditor(f.config); err != nil {
			util.Warn("ClickHouse auditor initialization failed - proceeding without audit", util.ErrorField(err))
		} else {
			f.clickhouseAuditor = auditor
		}
	}

	return nil
}

// initializeServices wires repositories, caches and the auth protocol
func (f *Factory) initializeServices() error {
	f.hasher = hashing.NewHasher(f.config)
	f.bucketingManager = bucketing.NewBucketingManager(0)

	f.accountRepository = scylla.NewAccountRepository(f.scyllaClient, f.bucketingManager)
	f.otpRepository = scylla.NewOTPRepository(f.scyllaClient, f.hasher)
	f.imageRepository = scylla.NewImageRepository(f.scyllaClient)

	f.rateLimitCache = redisrepo.NewRateLimitCache(f.redisClient)
	f.tokenCache = redisrepo.NewTokenCache(f.redisClient)

	issuer, err := token.NewIssuer(f.config, f.tokenCache, f.accountRepository, f.hasher)
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}
	f.tokenIssuer = issuer

	var events service.EventPublisher
	if f.kafkaProducer != nil {
		events = f.kafkaProducer
	}
	var auditor service.AuditRecorder
	if f.clickhouseAuditor != nil {
		auditor = f.clickhouseAuditor
	}

	f.authService = service.NewAuthService(
		f.config,
		f.accountRepository,
		f.otpRepository,
		f.imageRepository,
		f.rateLimitCache,
		f.tokenIssuer,
		sms.FromConfig(f.config),
		f.hasher,
		events,
		auditor,
	)

	return nil
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) AuthService() *service.AuthService {
	return f.authService
}

func (f *Factory) TokenIssuer() *token.Issuer {
	return f.tokenIssuer
}

func (f *Factory) AccountRepository() scylla.AccountRepository {
	return f.accountRepository
}

// Close releases all held connections. Safe to call more than once.
func (f *Factory) Close() {
	f.closeOnce.Do(func() {
		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}
		if f.clickhouseAuditor != nil {
			if err := f.clickhouseAuditor.Close(); err != nil {
				util.Error("Failed to close ClickHouse auditor", util.ErrorField(err))
			}
		}
		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}
		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}
		util.Info("Factory closed")
	})
}
