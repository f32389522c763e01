package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	LLM     LLMConfig
	Catalog CatalogConfig
	Audit   AuditConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type LLMConfig struct {
	APIKey             string
	Model              string
	TranscriptionModel string
	Language           string
	TimeoutSec         int
}

type CatalogConfig struct {
	Path string
}

type AuditConfig struct {
	Path string
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
	viper.AddConfigPath("/etc/grammar-coach")

	viper.SetEnvPrefix("GRAMMAR_COACH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Deployments set the bare OPENAI_API_KEY and PORT variables.
	viper.BindEnv("llm.apikey", "GRAMMAR_COACH_LLM_APIKEY", "OPENAI_API_KEY")
	viper.BindEnv("server.port", "GRAMMAR_COACH_SERVER_PORT", "PORT")

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

	if config.LLM.APIKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY in environment")
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 10000)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 90)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.transcriptionModel", "whisper-1")
	viper.SetDefault("llm.language", "en")
	viper.SetDefault("llm.timeoutSec", 60)

	viper.SetDefault("catalog.path", "grammar_points.json")

	viper.SetDefault("audit.path", "learner_logs.csv")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
