// Package config loads env-tagged configuration structs.
//
// Each package in marketpulse declares its own Config with caarlos0/env tags;
// cmd/server composes them into one struct and calls Load once. Dotenv files
// are read with joho/godotenv and never override the real environment.
package config
