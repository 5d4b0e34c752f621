package cmd

import (
	"errors"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/cv-wizard/internal/ai"
	"github.com/spigell/cv-wizard/internal/store"
	"github.com/spigell/cv-wizard/internal/wizard"
)

const (
	app       = "cv-wizard"
	envPrefix = "CV_WIZARD"
)

type Config struct {
	Channel       string       `mapstructure:"channel"`
	QuestionsFile string       `mapstructure:"questions-file"`
	HistoryLimit  int          `mapstructure:"history-limit"`
	AI            *AIConfig    `mapstructure:"ai"`
	Store         *StoreConfig `mapstructure:"store"`
	Serve         *ServeConfig `mapstructure:"serve"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
	OpenAI   *OpenAIConfig `mapstructure:"openai"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type OpenAIConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	BaseURL      string `mapstructure:"base-url"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type ServeConfig struct {
	Listen string `mapstructure:"listen"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "cv-wizard collects CV details through a chat or voice conversation with an AI assistant",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is cv-wizard.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().StringP("channel", "c", "", "conversation channel: chat or voice")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("channel", rootCmd.PersistentFlags().Lookup("channel"))

	setDefaults()
}

func setDefaults() {
	viper.SetDefault("channel", "chat")
	viper.SetDefault("questions-file", "")
	viper.SetDefault("history-limit", wizard.DefaultHistoryLimit)
	viper.SetDefault("ai.provider", ai.ProviderGemini)
	viper.SetDefault("ai.gemini.api-key", "")
	viper.SetDefault("ai.gemini.api-key-file", "")
	viper.SetDefault("ai.gemini.model", "")
	viper.SetDefault("ai.gemini.max-retries", 3)
	viper.SetDefault("ai.gemini.max-log-length", 200)
	viper.SetDefault("ai.openai.api-key", "")
	viper.SetDefault("ai.openai.api-key-file", "")
	viper.SetDefault("ai.openai.model", "")
	viper.SetDefault("ai.openai.base-url", "")
	viper.SetDefault("ai.openai.max-retries", 2)
	viper.SetDefault("ai.openai.max-log-length", 200)
	viper.SetDefault("store.driver", store.DriverMemory)
	viper.SetDefault("store.dsn", "")
	viper.SetDefault("serve.listen", ":8080")
}

func initConfig() {
	// .env is optional; real environment variables still win over it.
	_ = godotenv.Load()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		// We can't proceed if the config file parsed with error.
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
