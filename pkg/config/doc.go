// Package config loads typed settings from environment variables.
//
// Every package that needs settings declares a struct tagged for
// github.com/caarlos0/env and the binary loads it once:
//
//	var cfg mongo.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// A .env file in the working directory is read on first use through
// github.com/joho/godotenv; real environment variables take precedence.
package config
