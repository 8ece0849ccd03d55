package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/classhub/internal/flagx"
	"github.com/dmitrijs2005/classhub/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "30s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its non-zero fields are copied into the runtime
// Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP  string         `json:"endpoint_addr_http"`
	DatabaseDSN       string         `json:"database_dsn"`
	RedisAddr         string         `json:"redis_addr"`
	RedisPassword     string         `json:"redis_password"`
	StorageDir        string         `json:"storage_dir"`
	QuarantineDir     string         `json:"quarantine_dir"`
	ClamscanPath      string         `json:"clamscan_path"`
	GhostscriptPath   string         `json:"ghostscript_path"`
	ToolTimeout       timex.Duration `json:"tool_timeout"`
	Workers           int            `json:"workers"`
	DequeueTimeout    timex.Duration `json:"dequeue_timeout"`
	ReaperInterval    timex.Duration `json:"reaper_interval"`
	ProcessingTimeout timex.Duration `json:"processing_timeout"`
	MaxImagePixels    int64          `json:"max_image_pixels"`
	JPEGQuality       int            `json:"jpeg_quality"`
	ListingCacheTTL   timex.Duration `json:"listing_cache_ttl"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The lookup order for the JSON file path is the -c or -config command-line
// flags; if neither is set, no JSON file is loaded. Zero-valued JSON fields
// leave the corresponding defaults untouched. If the file cannot be read or
// contains invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setDuration := func(dst *time.Duration, v timex.Duration) {
		if v.Duration != 0 {
			*dst = v.Duration
		}
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setString(&config.StorageDir, c.StorageDir)
	setString(&config.QuarantineDir, c.QuarantineDir)
	setString(&config.ClamscanPath, c.ClamscanPath)
	setString(&config.GhostscriptPath, c.GhostscriptPath)
	setDuration(&config.ToolTimeout, c.ToolTimeout)
	setDuration(&config.DequeueTimeout, c.DequeueTimeout)
	setDuration(&config.ReaperInterval, c.ReaperInterval)
	setDuration(&config.ProcessingTimeout, c.ProcessingTimeout)
	setDuration(&config.ListingCacheTTL, c.ListingCacheTTL)

	if c.Workers != 0 {
		config.Workers = c.Workers
	}
	if c.MaxImagePixels != 0 {
		config.MaxImagePixels = c.MaxImagePixels
	}
	if c.JPEGQuality != 0 {
		config.JPEGQuality = c.JPEGQuality
	}
}
