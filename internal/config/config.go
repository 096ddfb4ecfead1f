package config

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

func LoadConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/reconctl/")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Warn().Msg("Config file not found")
		} else {
			log.Panic().Err(err).Msg("Fatal error reading config file")
		}
	}
	SetDefaultConfig()
}

func SetDefaultConfig() {
	// Logging
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.console.format", "pretty")
	viper.SetDefault("logging.file.enabled", true)
	viper.SetDefault("logging.file.path", "reconctl.log")
	viper.SetDefault("logging.file.level", "info")

	// API
	viper.SetDefault("api.listen.host", "")
	viper.SetDefault("api.listen.port", 8080)
	viper.SetDefault("api.cors.origins", []string{"*"})
	viper.SetDefault("api.metrics.enabled", false)
	viper.SetDefault("api.metrics.path", "/metrics")
	viper.SetDefault("api.auth.jwt_secret_key", "")

	// Database
	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.sqlite.path", "reconctl.db")
	viper.SetDefault("database.postgres.dsn", "")

	// Key-Value Bus (Redis)
	viper.SetDefault("kvb.addr", "localhost:6379")
	viper.SetDefault("kvb.password", "")
	viper.SetDefault("kvb.db", 0)
	viper.SetDefault("kvb.output_ttl", "24h")
	viper.SetDefault("kvb.progress_ttl", "1h")

	// External scanner
	viper.SetDefault("scanner.base_url", "http://localhost:9000")
	viper.SetDefault("scanner.connect_timeout", "30s")
	viper.SetDefault("scanner.callback_base_url", "http://localhost:8080")

	// Watcher
	viper.SetDefault("watcher.poll_interval", "1500ms")
	viper.SetDefault("watcher.subscribe_timeout", "1s")
	viper.SetDefault("watcher.inactivity_timeout", "120s")

	// Gateway
	viper.SetDefault("gateway.dedupe_cap", 5000)
	viper.SetDefault("gateway.dedupe_keep", 2000)
	viper.SetDefault("gateway.flush_lines", 20)
	viper.SetDefault("gateway.flush_interval", "200ms")
	viper.SetDefault("gateway.list_stream_interval", "5s")

	// Webhook
	viper.SetDefault("webhook.parse_timeout", "10s")
}
