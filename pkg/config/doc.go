// Package config reads typed configuration from environment variables using
// github.com/caarlos0/env struct tags, with optional .env files loaded through
// github.com/joho/godotenv.
//
// Every infrastructure package declares its own Config struct (pg.Config,
// redis.Config, httpserver.Config) and the service binary composes them:
//
//	type AppConfig struct {
//		Env         string `env:"APP_ENV" envDefault:"development"`
//		CatalogFile string `env:"CATALOG_FILE"`
//	}
//
//	var app AppConfig
//	config.MustLoad(&app)
package config
