package main

import (
	"context"
	"fmt"
	"time"

	awsclient "clinic-workers/internal/common/aws"
	"clinic-workers/internal/common/config"
	"clinic-workers/internal/common/database"
	httpclient "clinic-workers/internal/common/http"
	"clinic-workers/internal/common/logger"
	"clinic-workers/internal/notification/directory"
	"clinic-workers/internal/notification/dispatch"
	"clinic-workers/internal/notification/record"
	"clinic-workers/internal/sequence"
)

// backends holds the connections opened for the configured stores.
type backends struct {
	pg    *database.PostgresClient
	redis *database.RedisClient
	mongo *database.MongoClient
	es    *database.ElasticsearchClient
}

func (b *backends) close(ctx context.Context) {
	if b.pg != nil {
		_ = b.pg.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.mongo != nil {
		_ = b.mongo.Close(ctx)
	}
}

// ping reports the first unhealthy backend.
func (b *backends) ping(ctx context.Context) error {
	if err := b.pg.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if b.redis != nil {
		if err := b.redis.Ping(ctx); err != nil {
			return err
		}
	}
	if b.mongo != nil {
		if err := b.mongo.Ping(ctx); err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
	}
	return nil
}

func openBackends(ctx context.Context, cfg *config.Config, log logger.Logger) (*backends, error) {
	b := &backends{}

	err := retryWithBackoff(func() error {
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		if err := pg.Ping(ctx); err != nil {
			_ = pg.Close()
			return err
		}
		b.pg = pg
		return nil
	}, 15, 2*time.Second, log, "PostgreSQL connection")
	if err != nil {
		return nil, err
	}
	if err := b.pg.Migrate(ctx); err != nil {
		return nil, err
	}

	if cfg.Database.Redis.Address != "" {
		rc, err := database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return nil, err
		}
		if err := rc.Ping(ctx); err != nil {
			if cfg.Sequence.Backend == config.BackendRedis {
				return nil, err
			}
			log.Warn("redis unavailable, directory cache disabled", map[string]interface{}{"error": err})
			_ = rc.Close()
		} else {
			b.redis = rc
		}
	}

	if cfg.Sequence.Backend == config.BackendMongo || cfg.Notifications.RecordBackend == config.BackendMongo {
		mc, err := database.NewMongo(ctx, cfg.Database.Mongo)
		if err != nil {
			return nil, err
		}
		b.mongo = mc
	}

	if cfg.Notifications.Audit.Enabled {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return nil, err
		}
		if err := es.Ping(ctx); err != nil {
			log.Warn("elasticsearch unavailable, audit writes will fail until it recovers", map[string]interface{}{"error": err})
		}
		b.es = es
	}

	return b, nil
}

func buildSequenceStore(ctx context.Context, cfg *config.Config, b *backends) (sequence.Store, error) {
	switch cfg.Sequence.Backend {
	case config.BackendRedis:
		return sequence.NewRedisStore(b.redis.Client), nil
	case config.BackendMongo:
		s := sequence.NewMongoStore(b.mongo.Database)
		if err := s.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendMemory:
		return sequence.NewMemoryStore(), nil
	default:
		return sequence.NewPostgresStore(b.pg.DB), nil
	}
}

func buildRecordStore(ctx context.Context, cfg *config.Config, b *backends) (record.Store, error) {
	switch cfg.Notifications.RecordBackend {
	case config.BackendMongo:
		s := record.NewMongoStore(b.mongo.Database)
		if err := s.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendMemory:
		return record.NewMemoryStore(), nil
	default:
		return record.NewPostgresStore(b.pg.DB), nil
	}
}

func buildDirectory(cfg *config.Config, b *backends, log logger.Logger) directory.Directory {
	var dir directory.Directory = directory.NewPostgresDirectory(b.pg.DB)
	ttl := config.GetDuration(cfg.Notifications.Directory.CacheTTL)
	if b.redis != nil && ttl > 0 {
		dir = directory.NewCachedDirectory(dir, b.redis.Client, ttl, log)
	}
	return dir
}

// buildChannels returns the auto chain sms, email, log. Channels without a
// configured provider stay in the chain and report themselves unavailable.
func buildChannels(ctx context.Context, cfg *config.Config, log logger.Logger) ([]dispatch.Channel, error) {
	n := cfg.Notifications

	var (
		snsAPI awsclient.SNSAPI
		mailer dispatch.Mailer
	)

	if n.SMS.Enabled || n.Email.Provider == config.EmailProviderSES {
		awsCfg, err := awsclient.LoadConfig(ctx, n.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		if n.SMS.Enabled {
			snsAPI = awsclient.NewSNSClient(awsCfg)
		}
		if n.Email.Provider == config.EmailProviderSES {
			mailer = dispatch.NewSESMailer(awsclient.NewSESClient(awsCfg), n.Email.FromEmail)
		}
	}

	// A provider without its host or token leaves the email channel unavailable.
	switch n.Email.Provider {
	case config.EmailProviderSMTP:
		if n.SMTP.Host == "" {
			log.Warn("smtp provider selected without a host, email disabled", nil)
			break
		}
		mailer = dispatch.NewSMTPMailer(n.SMTP, n.Email.FromEmail)
	case config.EmailProviderPostmark:
		if n.Postmark.ServerToken == "" {
			log.Warn("postmark provider selected without a server token, email disabled", nil)
			break
		}
		mailer = dispatch.NewPostmarkMailer(n.Postmark.ServerToken, n.Postmark.AccountToken, n.Email.FromEmail, n.Postmark.Tag,
			httpclient.NewClient(config.GetDuration(n.DispatchTimeout)))
	}

	return []dispatch.Channel{
		dispatch.NewSMSChannel(snsAPI, n.SMS.SenderID),
		dispatch.NewEmailChannel(mailer),
		dispatch.NewLogChannel(log),
	}, nil
}
