// Package main provides the entry point for the finagg CLI application.
package main

import (
	"os"
	"path/filepath"
	"strings"

	"finagg/cmd/root"
	"finagg/cmd/rules"
	"finagg/cmd/tags"
	"finagg/cmd/transactions"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func init() {
	// Load environment variables silently first, then set the global
	// log level before any logger is created.
	loadEnvSilently()
	logrus.SetLevel(configureLogLevel())

	root.Init()

	root.Cmd.AddCommand(rules.Cmd)
	root.Cmd.AddCommand(transactions.Cmd)
	root.Cmd.AddCommand(tags.Cmd)
}

// loadEnvSilently loads environment variables without logging anything
func loadEnvSilently() {
	envFile := ".env"
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		envFile = filepath.Join("..", ".env")
		if _, err := os.Stat(envFile); os.IsNotExist(err) {
			return
		}
	}
	_ = godotenv.Load(envFile)
}

// configureLogLevel parses LOG_LEVEL, defaulting to info.
func configureLogLevel() logrus.Level {
	logLevelStr := os.Getenv("LOG_LEVEL")
	if logLevelStr == "" {
		logLevelStr = "info"
	}

	logLevel, err := logrus.ParseLevel(strings.ToLower(logLevelStr))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	return logLevel
}

func main() {
	if err := root.Cmd.Execute(); err != nil {
		root.Log.Error(err)
		os.Exit(1)
	}
}
