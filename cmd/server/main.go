// Command server runs the threadloom ingestion and extraction pipeline:
// it accepts buffered message batches, drains them through the
// extraction graph, persists passing articles, and serves the ambient
// HTTP surface (health, chat webhook ingress, export download).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"

	"github.com/threadloom/threadloom/internal/config"
	"github.com/threadloom/threadloom/internal/disentangle"
	"github.com/threadloom/threadloom/internal/embedding"
	"github.com/threadloom/threadloom/internal/extraction"
	"github.com/threadloom/threadloom/internal/extraction/llm"
	"github.com/threadloom/threadloom/internal/gcpclient"
	"github.com/threadloom/threadloom/internal/handler"
	"github.com/threadloom/threadloom/internal/httpapi"
	"github.com/threadloom/threadloom/internal/model"
	"github.com/threadloom/threadloom/internal/repository"
	"github.com/threadloom/threadloom/internal/sourcefetch"
	"github.com/threadloom/threadloom/internal/streambuffer"
	"github.com/threadloom/threadloom/internal/worker"
)

const Version = "0.1.0"

// publisher is the subset of *streambuffer.Buffer flushDispatcher depends
// on, narrowed so tests can substitute a fake without a live Redis server.
type publisher interface {
	Publish(ctx context.Context, sourceType, channelScope string, msg model.RawMessage) (bool, error)
}

// flushDispatcher adapts a streambuffer.Buffer to sourcefetch.Publisher,
// turning its advisory "trigger fired" bool into the FlushJob the worker
// pool actually consumes. Buffer.Publish alone never drains anything.
// serverScope is carried from the triggering Publish call straight onto
// the FlushJob rather than round-tripped through the buffer itself: a
// channel belongs to exactly one server for its whole lifetime, so
// whichever event fires the trigger already carries the right scope.
type flushDispatcher struct {
	buffer publisher
	jobs   chan<- worker.FlushJob
}

func (d *flushDispatcher) Publish(ctx context.Context, sourceType, serverScope, channelScope string, msg model.RawMessage) (bool, error) {
	fired, err := d.buffer.Publish(ctx, sourceType, channelScope, msg)
	if err != nil {
		return false, err
	}
	if fired {
		select {
		case d.jobs <- worker.FlushJob{SourceType: sourceType, ServerScope: serverScope, ChannelScope: channelScope}:
		default:
			slog.Warn("server: flush job queue full, dropping trigger", "source_type", sourceType, "channel", channelScope)
		}
	}
	return fired, nil
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return fmt.Errorf("server: connect database: %w", err)
	}
	defer pool.Close()

	if cfg.GCPProject == "" {
		return fmt.Errorf("server: GOOGLE_CLOUD_PROJECT is required to run the extraction graph")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	buffer := streambuffer.New(redisClient)

	embedAdapter, err := gcpclient.NewEmbeddingAdapter(ctx, cfg.GCPProject, cfg.EmbeddingLocation, cfg.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("server: embedding adapter: %w", err)
	}
	embedder := embedding.NewCache(embedAdapter, embedding.DefaultTTL())

	genAI, err := gcpclient.NewGenAIAdapter(ctx, cfg.GCPProject, cfg.VertexAILocation, cfg.VertexAIModel)
	if err != nil {
		return fmt.Errorf("server: genai adapter: %w", err)
	}
	defer genAI.Close()

	channels := repository.NewChannelRepo(pool)
	threads := repository.NewThreadRepo(pool)
	articles := repository.NewArticleRepo(pool, channels, threads, embedder)
	checkpoints := repository.NewCheckpointRepo(pool)
	consentRepo := repository.NewConsentRepo(pool)

	runtime := &extraction.Runtime{
		Disentangler: disentangle.New(embedder),
		Classifier:   &llm.Classifier{Adapter: genAI},
		Evaluator:    &llm.Evaluator{Adapter: genAI},
		Compiler:     &llm.Compiler{Adapter: genAI},
		Checkpoints:  checkpoints,
	}

	jobs := make(chan worker.FlushJob, 256)
	workerPool := &worker.Pool{
		Buffer: buffer,
		Processor: &worker.Processor{
			Runtime:   runtime,
			Consent:   consentRepo,
			Persister: articles,
		},
		Concurrency: cfg.WorkerConcurrency,
	}

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	go workerPool.Run(workerCtx, jobs)

	dispatcher := &flushDispatcher{buffer: buffer, jobs: jobs}

	var chatPublisher sourcefetch.Publisher
	var chatMonitored func(serverID, channelID string) bool
	if cfg.ChatEnabled() {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.GCPProject)
		if err != nil {
			return fmt.Errorf("server: pubsub client: %w", err)
		}
		defer pubsubClient.Close()

		monitor := &sourcefetch.ChannelMonitor{
			Lister:        channels,
			SourceType:    cfg.ChatSourceType,
			RefreshPeriod: time.Duration(cfg.ChannelRefreshPeriod) * time.Second,
		}
		go func() {
			if err := monitor.Run(workerCtx); err != nil && workerCtx.Err() == nil {
				slog.Error("server: channel monitor stopped", "error", err)
			}
		}()
		chatMonitored = monitor.IsMonitored

		chatSub := &sourcefetch.ChatSubscriber{
			Subscription:      pubsubClient.Subscription(cfg.ChatPubsubSubscription),
			Publisher:         dispatcher,
			SourceType:        cfg.ChatSourceType,
			MonitoredChannels: monitor.IsMonitored,
		}
		go func() {
			if err := chatSub.Run(workerCtx); err != nil && workerCtx.Err() == nil {
				slog.Error("server: chat subscriber stopped", "error", err)
			}
		}()
		chatPublisher = dispatcher
	} else {
		slog.Info("server: chat ingestion disabled, CHAT_PUBSUB_SUBSCRIPTION unset")
	}

	if cfg.ForumEnabled() {
		poller := &sourcefetch.ForumPoller{
			Fetcher:    sourcefetch.NewForumFetcher(cfg.ForumToken),
			Repos:      sourcefetch.ParseRepoList(cfg.ForumRepos),
			PollPeriod: time.Duration(cfg.ForumPollPeriod) * time.Second,
			Processor:  workerPool.Processor,
		}
		go func() {
			if err := poller.Run(workerCtx); err != nil && workerCtx.Err() == nil {
				slog.Error("server: forum poller stopped", "error", err)
			}
		}()
	} else {
		slog.Info("server: forum ingestion disabled, FORUM_TOKEN or FORUM_REPOS unset")
	}

	var blobstore handler.Blobstore
	if cfg.ExportEnabled() {
		storage, err := gcpclient.NewStorageAdapter(ctx, cfg.GCSBucketName)
		if err != nil {
			return fmt.Errorf("server: storage adapter: %w", err)
		}
		defer storage.Close()
		blobstore = storage
	} else {
		slog.Info("server: export download disabled, GCS_BUCKET_NAME unset")
	}

	router := httpapi.NewRouter(httpapi.Deps{
		DB:                pool,
		Exports:           blobstore,
		ChatPublisher:     chatPublisher,
		ChatSourceType:    cfg.ChatSourceType,
		MonitoredChannels: chatMonitored,
		FrontendURL:       cfg.FrontendURL,
		Version:           Version,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server: starting", "version", Version, "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("server: received signal, shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	cancelWorkers()
	close(jobs)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: graceful shutdown: %w", err)
	}

	slog.Info("server: stopped")
	return nil
}

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("server: fatal", "error", err)
		os.Exit(1)
	}
}
