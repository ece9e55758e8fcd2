package main

import (
	"fmt"
	"strings"

	"github.com/spinnaker-go/spinnman/internal/config"
	"github.com/spinnaker-go/spinnman/internal/errors"
	"github.com/spinnaker-go/spinnman/internal/logging"
	"github.com/spinnaker-go/spinnman/internal/transceiver"
)

func parseLogLevel(s string) logging.LogLevel {
	switch strings.ToLower(s) {
	case "silent":
		return logging.LogLevelSilent
	case "error":
		return logging.LogLevelError
	case "verbose":
		return logging.LogLevelVerbose
	case "debug":
		return logging.LogLevelDebug
	default:
		return logging.LogLevelInfo
	}
}

// loadConfig reads the YAML config at path, auto-creating a default one on
// first run the same way the rest of the pack's tools seed a config.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path, true)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}
	return cfg, nil
}

// connect loads the configuration at configPath and dials every endpoint
// it names (spec §4.6 New/connect). Callers must Close the transceiver.
func connect(configPath string) (*transceiver.Transceiver, *config.Config, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger(parseLogLevel(cfg.Logging.Level), cfg.Logging.LogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	tr, err := transceiver.New(cfg, transceiver.WithLogger(logger))
	if err != nil {
		return nil, nil, errors.WrapNetworkError(err, cfg.Machine.Host, cfg.Machine.SCPPort)
	}
	return tr, cfg, nil
}
