package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config captures the runtime configuration for the gateway.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Ollama        OllamaConfig        `mapstructure:"ollama"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	ListenAddr            string        `mapstructure:"listen_addr"`
	BodyLimitMB           int           `mapstructure:"body_limit_mb"`
	ReadTimeout           time.Duration `mapstructure:"read_timeout"`
	StreamMaxDuration     time.Duration `mapstructure:"stream_max_duration"`
	GracefulShutdownDelay time.Duration `mapstructure:"graceful_shutdown_delay"`
}

// AuthConfig is the process-wide shared secret, loaded once at startup and
// immutable afterwards.
type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type OllamaConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	// NumCtx and VisionNumCtx are backend capability constants, not
	// user-tunable request parameters. Vision requests run with a smaller
	// window and NumGPU -1 (all available accelerators) because of the
	// memory pressure of image prompts.
	NumCtx       int `mapstructure:"num_ctx"`
	VisionNumCtx int `mapstructure:"vision_num_ctx"`
	VisionNumGPU int `mapstructure:"vision_num_gpu"`
}

type GatewayConfig struct {
	// Stats appends the [Stats: ...] throughput annotation to output.
	Stats bool `mapstructure:"stats"`
}

type ObservabilityConfig struct {
	EnableMetrics bool   `mapstructure:"enable_metrics"`
	EnableOTLP    bool   `mapstructure:"enable_otlp"`
	OTLPEndpoint  string `mapstructure:"otlp_endpoint"`
}

// Options controls the config loader behavior.
type Options struct {
	ConfigFile string
	EnvFile    string
}

// Load returns the merged configuration sourced from YAML, environment
// variables, and the legacy API_KEY / PORT variables the original
// deployment used.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		_ = godotenv.Load(opts.EnvFile)
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	explicitFile := false
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		explicitFile = true
	} else if cfg := os.Getenv("GATEWAY_CONFIG_FILE"); cfg != "" {
		v.SetConfigFile(cfg)
		explicitFile = true
	}

	if !explicitFile {
		v.SetConfigName("gateway")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(timeStringToDurationHook())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyLegacyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyLegacyEnv honors the bare API_KEY and PORT variables for
// compatibility with existing .env files.
func applyLegacyEnv(cfg *Config) {
	if cfg.Auth.APIKey == "" {
		cfg.Auth.APIKey = strings.TrimSpace(os.Getenv("API_KEY"))
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if _, err := strconv.Atoi(port); err == nil {
			cfg.Server.ListenAddr = ":" + port
		}
	}
}

// Validate ensures required values are set.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.APIKey) == "" {
		return fmt.Errorf("missing required configuration: GATEWAY_AUTH_API_KEY (or API_KEY)")
	}
	if strings.TrimSpace(c.Ollama.Model) == "" {
		return fmt.Errorf("ollama.model must be set")
	}
	if c.Ollama.NumCtx <= 0 {
		return fmt.Errorf("ollama.num_ctx must be > 0")
	}
	if c.Ollama.VisionNumCtx <= 0 {
		return fmt.Errorf("ollama.vision_num_ctx must be > 0")
	}
	if c.Server.BodyLimitMB <= 0 {
		return fmt.Errorf("server.body_limit_mb must be > 0")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8000")
	v.SetDefault("server.body_limit_mb", 50)
	v.SetDefault("server.read_timeout", "120s")
	v.SetDefault("server.stream_max_duration", "30m")
	v.SetDefault("server.graceful_shutdown_delay", "5s")

	// Registered empty so AutomaticEnv picks up GATEWAY_AUTH_API_KEY during
	// Unmarshal; viper only binds keys it already knows about.
	v.SetDefault("auth.api_key", "")

	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "llama3.2-vision:11b-instruct-fp16")
	v.SetDefault("ollama.num_ctx", 128000)
	v.SetDefault("ollama.vision_num_ctx", 32768)
	v.SetDefault("ollama.vision_num_gpu", -1)

	v.SetDefault("gateway.stats", true)

	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_otlp", false)
	v.SetDefault("observability.otlp_endpoint", "")
}

func timeStringToDurationHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case time.Duration:
			return v, nil
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, err
			}
			return d, nil
		case int, int64, float64:
			return data, nil
		default:
			return data, nil
		}
	}
}
