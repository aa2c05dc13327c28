// Package config loads process configuration from the environment. Load
// fails closed on missing credentials for required subsystems (database)
// but leaves optional subsystems (chat ingestion, forum ingestion, export
// storage) disabled rather than aborting the process.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration loaded from environment
// variables. It is immutable after Load() returns.
type Config struct {
	Port        int
	Environment string

	DatabaseURL      string
	DatabaseMaxConns int
	RedisAddr        string

	GCPProject          string
	VertexAILocation    string
	VertexAIModel       string
	EmbeddingLocation   string
	EmbeddingModel      string
	EmbeddingDimensions int

	GCSBucketName string
	KMSKeyRing    string
	KMSKeyName    string

	ChatPubsubSubscription string
	ChatSourceType         string
	ChannelRefreshPeriod   int // seconds

	ForumToken      string
	ForumRepos      string // comma-separated owner/repo list
	ForumPollPeriod int    // seconds

	QualityThreshold  float64
	MaxRetries        int
	WorkerConcurrency int

	FrontendURL string
}

// Load reads configuration from environment variables. DATABASE_URL is the
// only hard requirement — every ingestion and export subsystem degrades to
// disabled when its own credentials are absent.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("config.Load: DATABASE_URL is required")
	}

	cfg := &Config{
		Port:             envInt("PORT", 8080),
		Environment:      envStr("ENVIRONMENT", "development"),
		DatabaseURL:      dbURL,
		DatabaseMaxConns: envInt("DATABASE_MAX_CONNS", 25),
		RedisAddr:        envStr("REDIS_ADDR", "localhost:6379"),

		GCPProject:          envStr("GOOGLE_CLOUD_PROJECT", ""),
		VertexAILocation:    envStr("VERTEX_AI_LOCATION", "us-central1"),
		VertexAIModel:       envStr("VERTEX_AI_MODEL", "gemini-2.0-flash"),
		EmbeddingLocation:   envStr("VERTEX_AI_EMBEDDING_LOCATION", envStr("VERTEX_AI_LOCATION", "us-central1")),
		EmbeddingModel:      envStr("VERTEX_AI_EMBEDDING_MODEL", "text-embedding-005"),
		EmbeddingDimensions: envInt("EMBEDDING_DIMENSIONS", 384),

		GCSBucketName: envStr("GCS_BUCKET_NAME", ""),
		KMSKeyRing:    envStr("KMS_KEY_RING", "threadloom-export-keys"),
		KMSKeyName:    envStr("KMS_KEY_NAME", "manifest-signing-key"),

		ChatPubsubSubscription: envStr("CHAT_PUBSUB_SUBSCRIPTION", ""),
		ChatSourceType:         envStr("CHAT_SOURCE_TYPE", "discord"),
		ChannelRefreshPeriod:   envInt("CHANNEL_REFRESH_PERIOD_SECONDS", 300),

		ForumToken:      envStr("FORUM_TOKEN", ""),
		ForumRepos:      envStr("FORUM_REPOS", ""),
		ForumPollPeriod: envInt("FORUM_POLL_PERIOD_SECONDS", 900),

		QualityThreshold:  envFloat("QUALITY_THRESHOLD", 0.70),
		MaxRetries:        envInt("MAX_RETRIES", 3),
		WorkerConcurrency: envInt("WORKER_CONCURRENCY", 8),

		FrontendURL: envStr("FRONTEND_URL", "http://localhost:3000"),
	}

	return cfg, nil
}

// ChatEnabled reports whether the chat-platform ingestion subsystem has
// the credentials it needs to run.
func (c *Config) ChatEnabled() bool {
	return c.ChatPubsubSubscription != ""
}

// ForumEnabled reports whether the forum-platform fetcher has the
// credentials it needs to run.
func (c *Config) ForumEnabled() bool {
	return c.ForumToken != "" && c.ForumRepos != ""
}

// ExportEnabled reports whether export packaging has a blob store to
// write to.
func (c *Config) ExportEnabled() bool {
	return c.GCSBucketName != ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
