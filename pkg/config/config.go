package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig holds dev server configuration
type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	StaticDir string `mapstructure:"static_dir"`
}

// ProxyConfig holds proxy rule configuration
type ProxyConfig struct {
	// Path of the proxy rule file; located by convention when empty.
	Path           string        `mapstructure:"path"`
	ShowProxy      bool          `mapstructure:"show_proxy"`
	Shallow        bool          `mapstructure:"shallow"`
	ProbeUpstreams bool          `mapstructure:"probe_upstreams"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	DetailedStatus bool `mapstructure:"detailed_status"`
}

// Addr returns the listen address of the dev server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

var (
	// Global configuration
	globalConfig Config
)

// Load reads configuration from devproxy.yaml (in ".", "./config" or
// $CONFIG_PATH), DEVPROXY_* environment variables and flags, in increasing
// order of precedence. A missing config file is not an error.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigName("devproxy")
	v.SetConfigType("yaml")
	if dir := os.Getenv("CONFIG_PATH"); dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("DEVPROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	// Read the config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	globalConfig = cfg
	return &cfg, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.static_dir", "")

	v.SetDefault("proxy.path", "")
	v.SetDefault("proxy.show_proxy", false)
	v.SetDefault("proxy.shallow", false)
	v.SetDefault("proxy.probe_upstreams", false)
	v.SetDefault("proxy.probe_timeout", 2*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.detailed_status", false)
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"host":       "server.host",
	"port":       "server.port",
	"static":     "server.static_dir",
	"config":     "proxy.path",
	"show-proxy": "proxy.show_proxy",
	"shallow":    "proxy.shallow",
	"probe":      "proxy.probe_upstreams",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// Flags returns the command line flags understood by Load.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("devproxy", pflag.ContinueOnError)
	fs.String("host", "127.0.0.1", "Dev server listen host")
	fs.Int("port", 8080, "Dev server listen port")
	fs.String("static", "", "Directory served when no proxy rule matches")
	fs.StringP("config", "c", "", "Proxy config file (default: proxy/webpack/vue config in the working directory)")
	fs.Bool("show-proxy", false, "Log the active proxy rules after every reload")
	fs.Bool("shallow", false, "Watch only the proxy config file, not its includes")
	fs.Bool("probe", false, "Probe proxy targets after every reload")
	fs.String("log-level", "info", "Log level: debug, info, warn, error")
	fs.String("log-format", "text", "Log format: text or json")
	fs.Bool("version", false, "Print version and exit")
	return fs
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return err
		}
	}
	return nil
}

// GetConfig returns the global configuration
func GetConfig() *Config {
	return &globalConfig
}
