package cmd

import (
	"log/slog"

	"github.com/opencontext/opencontext/internal/chunk"
	"github.com/opencontext/opencontext/internal/config"
	"github.com/opencontext/opencontext/internal/corpus"
	"github.com/opencontext/opencontext/internal/embed"
	"github.com/opencontext/opencontext/internal/index"
	"github.com/opencontext/opencontext/internal/logging"
	"github.com/opencontext/opencontext/internal/search"
	"github.com/opencontext/opencontext/internal/store"
)

// app bundles the wired components behind every command.
type app struct {
	cfg     *config.Config
	corpus  *corpus.FSStore
	store   *store.Store
	embed   embed.Client
	builder *index.Builder
	engine  *search.Engine
	logger  *slog.Logger
	cleanup func()
}

// newApp loads config for the corpus root and wires the components.
func newApp() (*app, error) {
	cfg, err := config.Load(corpusRoot)
	if err != nil {
		return nil, err
	}

	logCfg := logging.Config{Level: cfg.Server.LogLevel, FilePath: cfg.Server.LogFile}
	if debugMode {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}
	logger, logCleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	cs, err := corpus.NewFSStore(corpusRoot)
	if err != nil {
		logCleanup()
		return nil, err
	}

	client, err := embed.NewHTTPClient(embed.Config{
		BaseURL:           cfg.Embeddings.BaseURL,
		APIKey:            cfg.Embeddings.APIKey,
		Model:             cfg.Embeddings.Model,
		Dimensions:        cfg.Embeddings.Dimensions,
		BatchSize:         cfg.Embeddings.BatchSize,
		Concurrency:       cfg.Embeddings.Concurrency,
		Timeout:           cfg.Embeddings.Timeout,
		MaxRetries:        cfg.Embeddings.MaxRetries,
		RequestsPerSecond: cfg.Embeddings.RequestsPerSecond,
	}, logger)
	if err != nil {
		logCleanup()
		return nil, err
	}
	cached, err := embed.NewCachedClient(client, embed.DefaultCacheSize)
	if err != nil {
		_ = client.Close()
		logCleanup()
		return nil, err
	}

	st := store.Open(config.IndexDir(corpusRoot), logger)
	chunker := chunk.New(chunk.Options{
		MaxChunkChars: cfg.Chunking.MaxChunkChars,
		OverlapChars:  cfg.Chunking.OverlapChars,
	})
	builder := index.NewBuilder(cs, chunker, cached, st,
		cfg.Embeddings.BatchSize, cfg.Embeddings.Concurrency, logger)
	engine := search.NewEngine(st, cached, search.Config{
		VectorWeight:  cfg.Search.VectorWeight,
		KeywordWeight: cfg.Search.KeywordWeight,
		RRFConstant:   cfg.Search.RRFConstant,
		DefaultLimit:  cfg.Search.DefaultLimit,
	}, logger)

	return &app{
		cfg:     cfg,
		corpus:  cs,
		store:   st,
		embed:   cached,
		builder: builder,
		engine:  engine,
		logger:  logger,
		cleanup: func() {
			_ = cached.Close()
			logCleanup()
		},
	}, nil
}
