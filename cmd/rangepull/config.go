package main

import (
	"fmt"

	"github.com/halvardor/rangepull/internal/config"
	"github.com/halvardor/rangepull/pkg/rangefetch"
)

// CLIConfig is the rangepull CLI's view of config.Config: a YAML file
// overlaid with RANGEPULL_-prefixed environment variables, then overlaid
// again by explicit flags.
type CLIConfig = config.Config

// defaultCLIConfig returns a CLIConfig seeded with library defaults.
func defaultCLIConfig() CLIConfig {
	return config.Default()
}

// loadConfigFromFile loads configuration from a YAML file, applied on top
// of defaultCLIConfig.
func loadConfigFromFile(path string) (CLIConfig, error) {
	return config.LoadFromFile(path)
}

// rangeRequestConfig builds the library's rangefetch.Config from c.
func rangeRequestConfig(c CLIConfig) rangefetch.Config {
	return rangefetch.DefaultConfig().CopyWith(
		rangefetch.WithChunkSize(c.ChunkSize),
		rangefetch.WithMaxConcurrentRequests(c.MaxConcurrentRequests),
		rangefetch.WithMaxRetries(c.Retry.Attempts),
		rangefetch.WithRetryDelay(c.Retry.Backoff),
		rangefetch.WithConnectionTimeout(c.ConnectionTimeout),
	)
}

func parseChecksumType(s string) (rangefetch.ChecksumType, error) {
	switch s {
	case "", "none":
		return rangefetch.ChecksumNone, nil
	case "sha256":
		return rangefetch.ChecksumSHA256, nil
	case "md5":
		return rangefetch.ChecksumMD5, nil
	default:
		return rangefetch.ChecksumNone, fmt.Errorf("unknown checksum type %q (want none, sha256, or md5)", s)
	}
}

func parseConflictStrategy(s string) (rangefetch.FileConflictStrategy, error) {
	switch s {
	case "", "overwrite":
		return rangefetch.ConflictOverwrite, nil
	case "rename":
		return rangefetch.ConflictRename, nil
	case "error":
		return rangefetch.ConflictError, nil
	default:
		return rangefetch.ConflictOverwrite, fmt.Errorf("unknown conflict strategy %q (want overwrite, rename, or error)", s)
	}
}
