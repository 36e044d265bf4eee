package bootstrap

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/explorable-research/explorable-backend/config"
	"github.com/explorable-research/explorable-backend/internal/auth"
	"github.com/explorable-research/explorable-backend/internal/explorables/arxiv"
	"github.com/explorable-research/explorable-backend/internal/explorables/blob"
	"github.com/explorable-research/explorable-backend/internal/explorables/generator"
	explorableshttp "github.com/explorable-research/explorable-backend/internal/explorables/http"
	"github.com/explorable-research/explorable-backend/internal/explorables/llm"
	"github.com/explorable-research/explorable-backend/internal/explorables/repository"
	"github.com/explorable-research/explorable-backend/internal/explorables/sandbox"
	"github.com/explorable-research/explorable-backend/internal/explorables/service"
	"github.com/explorable-research/explorable-backend/internal/explorables/source"
	"github.com/explorable-research/explorable-backend/internal/explorables/templates"
)

// Capabilities are the clients built once at process start and shared by
// every request.
type Capabilities struct {
	Pipeline *service.Pipeline
	// Events is nil when Redis is not configured.
	Events        explorableshttp.Subscriber
	APIKeys       *auth.APIKeyRepository
	Authenticator *auth.Authenticator
}

// BuildCapabilities wires the pipeline and its collaborators. rdb may be nil,
// in which case runs are not locked and status events are not published.
func BuildCapabilities(ctx context.Context, cfg *config.Config, db *pgxpool.Pool, rdb *redis.Client) (*Capabilities, error) {
	catalog, err := templates.Load(cfg.Sandbox.TemplateEnvSuffix)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	var (
		blobWriter source.BlobWriter
		blobReader generator.BlobReader
		blobDelete service.BlobDeleter
	)
	if cfg.Storage.Enabled() {
		store, err := blob.NewS3Store(ctx, blob.Options{
			Bucket:   cfg.Storage.Bucket,
			Region:   cfg.Storage.Region,
			Endpoint: cfg.Storage.Endpoint,
			Prefix:   cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("blob store: %w", err)
		}
		blobWriter, blobReader, blobDelete = store, store, store
	} else {
		log.Println("S3_BUCKET not set, PDFs are sent inline")
	}

	papers := arxiv.NewClient(cfg.Arxiv.BaseURL, cfg.Arxiv.ExportURL, cfg.Arxiv.RatePerSec)
	model := llm.NewClient(llm.Options{
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       cfg.LLM.APIKey,
		DefaultModel: cfg.LLM.DefaultModel,
		Timeout:      cfg.LLM.Timeout,
	})
	retry := generator.DefaultRetryPolicy()
	retry.MaxRetries = cfg.LLM.MaxRetries

	provider := sandbox.NewClient(cfg.Sandbox.APIURL, cfg.Sandbox.APIKey, cfg.Sandbox.Domain)

	deps := service.Deps{
		Store:     repository.NewProjectRepository(db),
		Resolver:  source.NewResolver(papers, blobWriter),
		Generator: generator.New(model, blobReader, retry),
		Sandboxes: sandbox.NewOrchestrator(provider, catalog, cfg.Sandbox.Timeout),
		Catalog:   catalog,
		Blobs:     blobDelete,
	}
	caps := &Capabilities{APIKeys: auth.NewAPIKeyRepository(db)}
	if rdb != nil {
		events := repository.NewEventPublisher(rdb)
		deps.Locks = repository.NewLockRepository(rdb)
		deps.Events = events
		caps.Events = events
	}

	caps.Pipeline = service.NewPipeline(deps, service.Config{
		DefaultModel: cfg.LLM.DefaultModel,
		RunTimeout:   cfg.Server.SyncRequestTimeout,
		LockTTL:      cfg.Redis.LockTTL,
	})

	var tokens auth.TokenVerifier
	if cfg.Firebase.CredentialsPath != "" {
		client, err := auth.InitializeFirebase(ctx, cfg.Firebase.CredentialsPath)
		if err != nil {
			return nil, err
		}
		tokens = client
	} else {
		log.Println("FIREBASE_CREDENTIALS_PATH not set, only API keys authenticate")
	}
	caps.Authenticator = auth.NewAuthenticator(tokens, caps.APIKeys)

	return caps, nil
}
