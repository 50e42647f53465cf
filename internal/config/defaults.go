package config

import "time"

// Provider names shared by the embedding and completion sections.
const (
	ProviderOpenAI = "openai"
	ProviderONNX   = "onnx"
	ProviderMock   = "mock"
)

const defaultTemperature = 0.7

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.CORSOrigins == nil {
		cfg.Server.CORSOrigins = []string{"http://localhost:3000"}
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = ".kotae/documents.db"
	}
	if cfg.Storage.VectorPath == "" {
		cfg.Storage.VectorPath = ".kotae/vectors.bolt"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderOpenAI
	}
	if cfg.Embedding.Model == "" && cfg.Embedding.Provider == ProviderOpenAI {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = modelDimensions(cfg.Embedding.Provider, cfg.Embedding.Model)
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 100
	}
	if cfg.Embedding.RequestsPerSecond == 0 {
		cfg.Embedding.RequestsPerSecond = 10
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Embedding.Provider == ProviderONNX && cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}

	if cfg.Completion.Provider == "" {
		cfg.Completion.Provider = ProviderOpenAI
	}
	if cfg.Completion.Model == "" {
		cfg.Completion.Model = "gpt-4o-mini"
	}
	if cfg.Completion.BaseURL == "" {
		cfg.Completion.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Completion.MaxTokens == 0 {
		cfg.Completion.MaxTokens = 500
	}
	if cfg.Completion.Timeout == 0 {
		cfg.Completion.Timeout = 60 * time.Second
	}

	if cfg.Vector.Type == "" {
		cfg.Vector.Type = "bolt"
	}
	if cfg.Vector.Timeout == 0 {
		cfg.Vector.Timeout = 30 * time.Second
	}
	if cfg.Vector.Pinecone.IndexName == "" {
		cfg.Vector.Pinecone.IndexName = "interview-bot"
	}
	if cfg.Vector.Pinecone.APIVersion == "" {
		cfg.Vector.Pinecone.APIVersion = "2025-10"
	}
	if cfg.Vector.Pinecone.ControlPlaneURL == "" {
		cfg.Vector.Pinecone.ControlPlaneURL = "https://api.pinecone.io"
	}
	if cfg.Vector.Qdrant.URL == "" {
		cfg.Vector.Qdrant.URL = "http://localhost:6333"
	}
	if cfg.Vector.Qdrant.Collection == "" {
		cfg.Vector.Qdrant.Collection = "kotae_chunks"
	}

	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 1000
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 200
	}
	if cfg.Ingest.MaxFileBytes == 0 {
		cfg.Ingest.MaxFileBytes = 5 * 1024 * 1024
	}
	if cfg.Ingest.MaxTitleLength == 0 {
		cfg.Ingest.MaxTitleLength = 100
	}
	if cfg.Ingest.MaxChunks == 0 {
		cfg.Ingest.MaxChunks = 10000
	}
	if cfg.Ingest.AllowedExtensions == nil {
		cfg.Ingest.AllowedExtensions = []string{".txt", ".md", ".pdf", ".xlsx"}
	}

	if cfg.Retrieval.TargetedTopK == 0 {
		cfg.Retrieval.TargetedTopK = 5
	}
	if cfg.Retrieval.DiscoveryTopK == 0 {
		cfg.Retrieval.DiscoveryTopK = 3
	}
	if cfg.Retrieval.ExpansionTopK == 0 {
		cfg.Retrieval.ExpansionTopK = 10000
	}
	if cfg.Retrieval.ContextSize == 0 {
		cfg.Retrieval.ContextSize = 5
	}
	if cfg.Retrieval.MaxConcurrency == 0 {
		cfg.Retrieval.MaxConcurrency = 4
	}

	if cfg.Chat.MaxMessageLength == 0 {
		cfg.Chat.MaxMessageLength = 1000
	}
	if cfg.Chat.HistoryLimit == 0 {
		cfg.Chat.HistoryLimit = 10
	}

	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".xlsx"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}

// modelDimensions returns the output dimension of known embedding models.
func modelDimensions(provider, model string) int {
	switch provider {
	case ProviderONNX, ProviderMock:
		return 384
	}
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	default:
		return 1536
	}
}
