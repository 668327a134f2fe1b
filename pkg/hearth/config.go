package hearth

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"

	"github.com/harunnryd/hearth/pkg/chat"
	"github.com/harunnryd/hearth/pkg/devices"
	"github.com/harunnryd/hearth/pkg/errorsx"
	"github.com/spf13/viper"
)

type Config struct {
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
	Vendors       VendorsConfig       `mapstructure:"vendors"`
	Transports    TransportsConfig    `mapstructure:"transports"`
	Chat          ChatConfig          `mapstructure:"chat"`
	Devices       DevicesConfig       `mapstructure:"devices"`
	Resilience    ResilienceConfig    `mapstructure:"resilience"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	LLM VendorConfig `mapstructure:"llm"`
}

type TransportsConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type ChatConfig struct {
	SystemPrompt  string `mapstructure:"system_prompt"`
	MaxToolRounds int    `mapstructure:"max_tool_rounds"`
	MaxHistory    int    `mapstructure:"max_history"`
	OnModelError  string `mapstructure:"on_model_error"`
}

type LightConfig struct {
	ID   int    `mapstructure:"id"`
	Name string `mapstructure:"name"`
	IsOn bool   `mapstructure:"is_on"`
}

type ThermostatConfig struct {
	CurrentTemp float64 `mapstructure:"current_temp"`
	TargetTemp  float64 `mapstructure:"target_temp"`
	Mode        string  `mapstructure:"mode"`
}

// DevicesConfig seeds the registry. Nil fields keep the built-in defaults.
type DevicesConfig struct {
	Lights     []LightConfig     `mapstructure:"lights"`
	Thermostat *ThermostatConfig `mapstructure:"thermostat"`
}

type ResilienceConfig struct {
	RetryAttempts     int `mapstructure:"retry_attempts"`
	RetryBaseDelayMS  int `mapstructure:"retry_base_delay_ms"`
	BreakerThreshold  int `mapstructure:"breaker_threshold"`
	BreakerCooldownMS int `mapstructure:"breaker_cooldown_ms"`
}

type ObservabilityConfig struct {
	EventsFile string `mapstructure:"events_file"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

// Environment variables read by the azure provider when no settings are
// configured.
const (
	EnvAzureEndpoint   = "AZURE_OPENAI_ENDPOINT"
	EnvAzureAPIKey     = "AZURE_OPENAI_API_KEY"
	EnvAzureDeployment = "AZURE_OPENAI_CHAT_DEPLOYMENT_NAME"
	EnvAzureAPIVersion = "AZURE_OPENAI_API_VERSION"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvOpenAIModel     = "OPENAI_CHAT_MODEL_ID"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("vendors.llm.provider", "azure")
	v.SetDefault("transports.provider", "console")
	v.SetDefault("chat.system_prompt", "")
	v.SetDefault("chat.max_tool_rounds", chat.DefaultMaxToolRounds)
	v.SetDefault("chat.max_history", 0)
	v.SetDefault("chat.on_model_error", string(chat.PolicyContinue))
	v.SetDefault("resilience.retry_attempts", 1)
	v.SetDefault("resilience.retry_base_delay_ms", 200)
	v.SetDefault("resilience.breaker_threshold", 3)
	v.SetDefault("resilience.breaker_cooldown_ms", 30000)
	v.SetDefault("observability.events_file", "")
	v.SetDefault("privacy.redact_pii", true)
}

// LoadConfig reads a YAML file. An empty path loads the defaults alone,
// which describe an Azure deployment fed from the environment.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errorsx.Wrapf(err, errorsx.ReasonConfigInvalid, "read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errorsx.Wrapf(err, errorsx.ReasonConfigInvalid, "unmarshal")
	}
	if len(cfg.Vendors.LLM.Settings) == 0 {
		cfg.Vendors.LLM.Settings = defaultLLMSettings(cfg.Vendors.LLM.Provider)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, errorsx.Wrapf(err, errorsx.ReasonConfigInvalid, "validate config")
	}
	return cfg, nil
}

// DefaultConfig is LoadConfig("") without the error.
func DefaultConfig() Config {
	cfg, err := LoadConfig("")
	if err != nil {
		panic(err)
	}
	return cfg
}

func defaultLLMSettings(provider string) map[string]any {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderAzure:
		return map[string]any{
			"endpoint":    "${" + EnvAzureEndpoint + "}",
			"api_key":     "${" + EnvAzureAPIKey + "}",
			"deployment":  "${" + EnvAzureDeployment + "}",
			"api_version": "${" + EnvAzureAPIVersion + "}",
		}
	case ProviderOpenAI:
		return map[string]any{
			"api_key": "${" + EnvOpenAIAPIKey + "}",
			"model":   "${" + EnvOpenAIModel + "}",
		}
	default:
		return nil
	}
}

// WithLLMProvider switches the model provider. Settings configured for the
// previous provider are dropped in favor of the new provider's environment
// defaults.
func (c Config) WithLLMProvider(provider string) Config {
	if providerKey(provider) == providerKey(c.Vendors.LLM.Provider) {
		return c
	}
	c.Vendors.LLM = VendorConfig{
		Provider: provider,
		Settings: expandSettings(defaultLLMSettings(provider)),
	}
	return c
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Transports.Provider) == "" {
		return errors.New("transports.provider is required")
	}
	if strings.TrimSpace(c.Vendors.LLM.Provider) == "" {
		return errors.New("vendors.llm.provider is required")
	}
	switch chat.ErrorPolicy(c.Chat.OnModelError) {
	case chat.PolicyContinue, chat.PolicyAbort:
	default:
		return fmt.Errorf("chat.on_model_error must be %q or %q, got %q", chat.PolicyContinue, chat.PolicyAbort, c.Chat.OnModelError)
	}
	if c.Chat.MaxToolRounds < 0 {
		return errors.New("chat.max_tool_rounds must not be negative")
	}
	if c.Chat.MaxHistory < 0 {
		return errors.New("chat.max_history must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	seen := make(map[int]bool, len(c.Devices.Lights))
	for _, l := range c.Devices.Lights {
		if l.ID <= 0 {
			return fmt.Errorf("devices.lights: id must be positive, got %d", l.ID)
		}
		if seen[l.ID] {
			return fmt.Errorf("devices.lights: duplicate id %d", l.ID)
		}
		seen[l.ID] = true
	}
	if t := c.Devices.Thermostat; t != nil && t.Mode != "" {
		if _, ok := devices.ParseMode(t.Mode); !ok {
			return fmt.Errorf("devices.thermostat.mode: invalid mode %q", t.Mode)
		}
	}
	return nil
}

// SessionConfig converts the chat section for chat.NewSession.
func (c Config) SessionConfig() chat.Config {
	return chat.Config{
		SystemPrompt:  c.Chat.SystemPrompt,
		MaxToolRounds: c.Chat.MaxToolRounds,
		MaxHistory:    c.Chat.MaxHistory,
		OnModelError:  chat.ErrorPolicy(c.Chat.OnModelError),
	}
}

// RegistryOptions converts the devices section for devices.NewRegistry.
func (c Config) RegistryOptions() []devices.Option {
	var opts []devices.Option
	if c.Devices.Lights != nil {
		lights := make([]devices.Light, 0, len(c.Devices.Lights))
		for _, l := range c.Devices.Lights {
			lights = append(lights, devices.Light{ID: l.ID, Name: l.Name, IsOn: l.IsOn})
		}
		opts = append(opts, devices.WithLights(lights))
	}
	if t := c.Devices.Thermostat; t != nil {
		mode, _ := devices.ParseMode(t.Mode)
		opts = append(opts, devices.WithThermostat(devices.Thermostat{
			CurrentTemp: t.CurrentTemp,
			TargetTemp:  t.TargetTemp,
			Mode:        mode,
		}))
	}
	return opts
}

// LoadEnvFile copies KEY=VALUE pairs from a dotenv file into the process
// environment. Variables that are already set win. It returns how many
// variables were set.
func LoadEnvFile(path string) (int, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return 0, fmt.Errorf("read env file: %w", err)
	}
	n := 0
	for _, key := range v.AllKeys() {
		name := strings.ToUpper(key)
		if _, exists := os.LookupEnv(name); exists {
			continue
		}
		if err := os.Setenv(name, v.GetString(key)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// IsNotExist reports whether err came from a missing file.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.LLM.Settings = expandSettings(cfg.Vendors.LLM.Settings)
	cfg.Transports.Settings = expandSettings(cfg.Transports.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
