package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Neo4j      Neo4jConfig
	Milvus     MilvusConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	LLM        LLMConfig
	Retrieval  RetrievalConfig
	Evaluation EvaluationConfig
	Batch      BatchConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	ReadTimeout        int
	WriteTimeout       int
	BodyLimit          int
	RateLimitPerMinute int
}

type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
	IndexType      string
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	Provider             string
	Model                string
	APIKey               string
	Temperature          float32
	MaxTokens            int
	TimeoutSec           int
	EmbeddingModel       string
	EmbeddingDim         int
	SecondaryModel       string
	SecondaryTemperature float32
	TokensPerMinute      int
}

type RetrievalConfig struct {
	TopK          int
	SemanticPool  int
	MaxQueryChars int
	OrgScope      string
}

type EvaluationConfig struct {
	MaxConcurrent       int
	MaxJudgementRetries int
	AbortAfterFailures  int
	QueueMaxPending     int
	QueueWorkers        int
	ItemTimeoutSec      int
	EvidenceLimit       int
}

type BatchConfig struct {
	NumRuns     int
	ConfigLabel string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/docanalyzer")

	viper.SetEnvPrefix("DOC_ANALYZER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 60)
	viper.SetDefault("server.bodyLimit", 26214400)
	viper.SetDefault("server.rateLimitPerMinute", 120)

	viper.SetDefault("neo4j.uri", "bolt://localhost:7687")
	viper.SetDefault("neo4j.username", "neo4j")
	viper.SetDefault("neo4j.password", "password")
	viper.SetDefault("neo4j.database", "neo4j")

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "device_doc_chunks")
	viper.SetDefault("milvus.vectorDim", 1536)
	viper.SetDefault("milvus.indexType", "IVF_FLAT")

	viper.SetDefault("sqlite.path", "./data/docanalyzer.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4o")
	viper.SetDefault("llm.temperature", 0.0)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.timeoutSec", 60)
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-large")
	viper.SetDefault("llm.embeddingDim", 1536)
	viper.SetDefault("llm.secondaryModel", "gpt-4o-mini")
	viper.SetDefault("llm.secondaryTemperature", 0.2)
	viper.SetDefault("llm.tokensPerMinute", 450000)

	viper.SetDefault("retrieval.topK", 10)
	viper.SetDefault("retrieval.semanticPool", 30)
	viper.SetDefault("retrieval.maxQueryChars", 300)
	viper.SetDefault("retrieval.orgScope", "default")

	viper.SetDefault("evaluation.maxConcurrent", 3)
	viper.SetDefault("evaluation.maxJudgementRetries", 2)
	viper.SetDefault("evaluation.abortAfterFailures", 3)
	viper.SetDefault("evaluation.queueMaxPending", 100)
	viper.SetDefault("evaluation.queueWorkers", 2)
	viper.SetDefault("evaluation.itemTimeoutSec", 1800)
	viper.SetDefault("evaluation.evidenceLimit", 5)

	viper.SetDefault("batch.numRuns", 5)
	viper.SetDefault("batch.configLabel", "baseline_v1")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
