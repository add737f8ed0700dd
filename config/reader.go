package config

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"

	"github.com/cadplugins/camtrack/logging"
	"github.com/cadplugins/camtrack/rimage"
)

// DebugEnvVar turns on debug logging regardless of the config file.
const DebugEnvVar = "CAMTRACK_DEBUG"

// Read reads a config from the given file. Environment variables in the file are expanded.
func Read(filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	return FromReader(filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies
// where, if applicable, the file the reader originated from.
func FromReader(originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	cfg := Config{ConfigFilePath: originalPath}
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to decode Config from json")
	}
	if err := processConfig(&cfg, logger); err != nil {
		return nil, errors.Wrapf(err, "failed to process Config")
	}
	return &cfg, nil
}

// processConfig fills in defaults, applies environment overrides and validates cfg.
func processConfig(cfg *Config, logger logging.Logger) error {
	defaults := Defaults()
	if len(cfg.Cameras) == 0 {
		logger.Debugw("no cameras configured, using default webcam", "path", cfg.ConfigFilePath)
		cfg.Cameras = defaults.Cameras
	}
	if cfg.Pipeline.Threshold == 0 {
		cfg.Pipeline.Threshold = rimage.DefaultThreshold
	}
	if v, ok := os.LookupEnv(DebugEnvVar); ok {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s value %q", DebugEnvVar, v)
		}
		cfg.Debug = debug
	}
	return cfg.Validate("")
}
