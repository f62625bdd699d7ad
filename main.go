package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai"

	"localanswer/pkg/config"
	"localanswer/rag"
	"localanswer/rag/engine"
	"localanswer/rag/interfaces"
	"localanswer/rag/llm"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	var serve bool
	flag.StringVar(&cfgPath, "config", "config.yaml", "path to the YAML config file")
	flag.BoolVar(&serve, "serve", false, "start the HTTP API instead of the interactive loop")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		xlog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	apiKey := cfg.APIKey()
	if apiKey == "" {
		xlog.Error("Missing API key", "env", cfg.OpenAI.APIKeyEnv)
		os.Exit(1)
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.OpenAI.BaseURL != "" {
		clientConfig.BaseURL = cfg.OpenAI.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	embedder := engine.NewOpenAIEmbedder(client, cfg.OpenAI.EmbeddingModel)

	index, err := buildIndex(cfg, embedder)
	if err != nil {
		xlog.Error("Failed to initialize vector index", "error", err)
		os.Exit(1)
	}

	retriever, err := rag.NewRetriever(embedder, index, cfg.Retrieval.Metric)
	if err != nil {
		xlog.Error("Failed to build retriever", "error", err)
		os.Exit(1)
	}

	generator := llm.NewOpenAIGenerator(client, cfg.OpenAI.ChatModel, cfg.OpenAI.Temperature)

	pipeline, err := rag.NewPipeline(retriever, generator, os.Stdout)
	if err != nil {
		xlog.Error("Failed to build pipeline", "error", err)
		os.Exit(1)
	}

	library, err := rag.NewLibrary(cfg.StateFile, cfg.AssetDir, index, embedder, cfg.MaxChunkSize)
	if err != nil {
		xlog.Error("Failed to open document library", "error", err)
		os.Exit(1)
	}

	if serve {
		startAPI(cfg, pipeline, library)
		return
	}

	if err := runREPL(cfg, pipeline, library); err != nil {
		xlog.Error("Interactive session failed", "error", err)
		os.Exit(1)
	}
}

func buildIndex(cfg *config.AppConfig, embedder interfaces.Embedder) (interfaces.Index, error) {
	switch cfg.Engine.Type {
	case "postgres":
		dims := cfg.Engine.EmbeddingDims
		if dims == 0 {
			// Probe the embedder once so the vector column width matches.
			vectors, err := embedder.Embed(context.Background(), []string{"test"})
			if err != nil {
				return nil, err
			}
			if len(vectors) == 0 || len(vectors[0]) == 0 {
				return nil, fmt.Errorf("embedder returned no vector while detecting embedding dimensions")
			}
			dims = len(vectors[0])
		}
		return engine.NewPostgresIndex(cfg.Engine.Collection, cfg.Engine.DatabaseURL, dims)
	default:
		return engine.NewChromemIndex(cfg.Engine.Collection, cfg.Engine.DBPath, embedder)
	}
}
