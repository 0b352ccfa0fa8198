package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		APIKey      string  `yaml:"api_key"`
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Embedder struct {
		Model           string  `yaml:"model"`
		BatchTokenLimit int     `yaml:"batch_token_limit"`
		SafetyMargin    int     `yaml:"safety_margin"`
		RateLimit       float64 `yaml:"rate_limit"`
	} `yaml:"embedder"`

	Segmenter struct {
		ChunkWords       int `yaml:"chunk_words"`
		OverlapSentences int `yaml:"overlap_sentences"`
	} `yaml:"segmenter"`

	Retriever struct {
		TopK       int `yaml:"top_k"`
		Oversample int `yaml:"oversample"`
		AskTopK    int `yaml:"ask_top_k"`
	} `yaml:"retriever"`

	Context struct {
		MaxTokens int `yaml:"max_tokens"`
	} `yaml:"context"`

	Data struct {
		InputDir   string `yaml:"input_dir"`
		ChunksPath string `yaml:"chunks_path"`
		IndexPath  string `yaml:"index_path"`
	} `yaml:"data"`

	Database struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
		VectorDim int    `yaml:"vector_dim"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"database"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/navigator/config.yaml"),
			"/etc/navigator/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Model == "" {
		config.LLM.Model = "gpt-4o-mini"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.1
	}

	if config.Embedder.Model == "" {
		config.Embedder.Model = "text-embedding-ada-002"
	}
	if config.Embedder.BatchTokenLimit == 0 {
		config.Embedder.BatchTokenLimit = 8191
	}
	if config.Embedder.SafetyMargin == 0 {
		config.Embedder.SafetyMargin = 50
	}
	if config.Embedder.RateLimit == 0 {
		config.Embedder.RateLimit = 2.0
	}

	if config.Segmenter.ChunkWords == 0 {
		config.Segmenter.ChunkWords = 500
	}
	if config.Segmenter.OverlapSentences == 0 {
		config.Segmenter.OverlapSentences = 1
	}

	if config.Retriever.TopK == 0 {
		config.Retriever.TopK = 20
	}
	if config.Retriever.Oversample == 0 {
		config.Retriever.Oversample = 5
	}
	if config.Retriever.AskTopK == 0 {
		config.Retriever.AskTopK = 5
	}

	if config.Context.MaxTokens == 0 {
		config.Context.MaxTokens = 4000
	}

	if config.Data.InputDir == "" {
		config.Data.InputDir = "./data"
	}
	if config.Data.ChunksPath == "" {
		config.Data.ChunksPath = "./rag_data/chunks.json"
	}
	if config.Data.IndexPath == "" {
		config.Data.IndexPath = "./rag_data/navigator.index"
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "rule_chunks"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 1536
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}

	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}
}

func mergeWithEnv(config *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Port = port
	}
}
