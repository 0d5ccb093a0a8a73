package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "PROXYBRIDGE"

// Load resolves the configuration from defaults, an optional config file,
// environment variables and any flags already bound to v, then validates it
func Load(v *viper.Viper, configFile string) (*Configuration, error) {
	cfg := NewConfiguration()
	registerDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// registerDefaults makes every key known to viper so environment variables
// are picked up for keys absent from the config file
func registerDefaults(v *viper.Viper, cfg *Configuration) {
	v.SetDefault("session", cfg.Session)
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("transport.kind", cfg.Transport.Kind)
	v.SetDefault("transport.redis_addr", cfg.Transport.RedisAddr)
	v.SetDefault("transport.redis_password", cfg.Transport.RedisPassword)
	v.SetDefault("transport.redis_db", cfg.Transport.RedisDB)
	v.SetDefault("transport.amqp_url", cfg.Transport.AMQPURL)
	v.SetDefault("channels.inbound_prefix", cfg.Channels.InboundPrefix)
	v.SetDefault("channels.outbound_prefix", cfg.Channels.OutboundPrefix)
	v.SetDefault("octet_stream_whitelist", cfg.OctetStreamWhitelist)
	v.SetDefault("reply_timeout", cfg.ReplyTimeout)
	v.SetDefault("publish_timeout", cfg.PublishTimeout)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("log_level", cfg.LogLevel)
}
