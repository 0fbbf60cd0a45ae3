package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for flightstats
type Config struct {
	Log      LogConfig
	Resample ResampleConfig
	Source   SourceConfig
	Export   ExportConfig
	Batch    BatchConfig
	Metrics  MetricsConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type ResampleConfig struct {
	Interval      time.Duration
	ScheduleMode  string // observed or regular
	SkipNonFinite bool
	// Field specs of the form "Field:metric,metric". When both lists are
	// empty the default leg summary is used.
	NumericFields     []string
	CategoricalFields []string
	// LegsField names a categorical field (e.g. AtvWpt) whose value changes
	// split the flight into legs; empty disables leg export.
	LegsField string
}

type SourceConfig struct {
	Kind           string // msgpack or sql
	Path           string // msgpack file or directory
	MaxPayloadSize int64  // decompressed msgpack payload limit in bytes
	Driver         string // sqlite3, duckdb or pgx
	DSN            string
	Table          string
	Flights        []string // restrict the run to these flights; empty means all

	// SQL reads stop after BreakerMaxFailures consecutive failures until
	// BreakerCooldown has passed. Zero disables the breaker.
	BreakerMaxFailures int
	BreakerCooldown    time.Duration

	MaxOpenConns      int
	DuckDBMemoryLimit string
	DuckDBThreads     int
}

type ExportConfig struct {
	Format          string // csv, parquet or msgpack
	Directory       string
	IndexName       string
	Compression     string // parquet: snappy, gzip, zstd or none
	UseDictionary   bool
	WriteStatistics bool
	DataPageVersion string
	MsgPackZstd     bool
}

type BatchConfig struct {
	Workers int
}

type MetricsConfig struct {
	// TextfilePath receives the counters in Prometheus text format when set.
	TextfilePath string
}

// Load reads configuration from defaults, an optional flightstats.toml and
// FLIGHTSTATS_* environment variables, in increasing priority.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("FLIGHTSTATS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("flightstats")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/flightstats/")
	v.AddConfigPath("$HOME/.flightstats/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	maxPayloadSize, err := ParseSize(v.GetString("source.max_payload_size"))
	if err != nil {
		return nil, fmt.Errorf("invalid source.max_payload_size: %w", err)
	}

	cfg := &Config{
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Resample: ResampleConfig{
			Interval:          v.GetDuration("resample.interval"),
			ScheduleMode:      v.GetString("resample.schedule_mode"),
			SkipNonFinite:     v.GetBool("resample.skip_non_finite"),
			NumericFields:     v.GetStringSlice("resample.numeric_fields"),
			CategoricalFields: v.GetStringSlice("resample.categorical_fields"),
			LegsField:         v.GetString("resample.legs_field"),
		},
		Source: SourceConfig{
			Kind:           v.GetString("source.kind"),
			Path:           v.GetString("source.path"),
			MaxPayloadSize: maxPayloadSize,
			Driver:         v.GetString("source.driver"),
			DSN:            v.GetString("source.dsn"),
			Table:          v.GetString("source.table"),
			Flights:        v.GetStringSlice("source.flights"),

			BreakerMaxFailures: v.GetInt("source.breaker_max_failures"),
			BreakerCooldown:    v.GetDuration("source.breaker_cooldown"),

			MaxOpenConns:      v.GetInt("source.max_open_conns"),
			DuckDBMemoryLimit: v.GetString("source.duckdb_memory_limit"),
			DuckDBThreads:     v.GetInt("source.duckdb_threads"),
		},
		Export: ExportConfig{
			Format:          v.GetString("export.format"),
			Directory:       v.GetString("export.directory"),
			IndexName:       v.GetString("export.index_name"),
			Compression:     v.GetString("export.compression"),
			UseDictionary:   v.GetBool("export.use_dictionary"),
			WriteStatistics: v.GetBool("export.write_statistics"),
			DataPageVersion: v.GetString("export.data_page_version"),
			MsgPackZstd:     v.GetBool("export.msgpack_zstd"),
		},
		Batch: BatchConfig{
			Workers: v.GetInt("batch.workers"),
		},
		Metrics: MetricsConfig{
			TextfilePath: v.GetString("metrics.textfile_path"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Resample defaults
	v.SetDefault("resample.interval", "60s")
	v.SetDefault("resample.schedule_mode", "observed")
	v.SetDefault("resample.skip_non_finite", true)
	v.SetDefault("resample.numeric_fields", []string{})
	v.SetDefault("resample.categorical_fields", []string{})
	v.SetDefault("resample.legs_field", "")

	// Source defaults
	v.SetDefault("source.kind", "msgpack")
	v.SetDefault("source.path", "./flights")
	v.SetDefault("source.max_payload_size", "512MB")
	v.SetDefault("source.driver", "sqlite3")
	v.SetDefault("source.dsn", "")
	v.SetDefault("source.table", "samples")
	v.SetDefault("source.flights", []string{})
	v.SetDefault("source.breaker_max_failures", 5)
	v.SetDefault("source.breaker_cooldown", "30s")
	v.SetDefault("source.max_open_conns", getDefaultWorkers())
	v.SetDefault("source.duckdb_memory_limit", "")
	v.SetDefault("source.duckdb_threads", 0)

	// Export defaults
	v.SetDefault("export.format", "csv")
	v.SetDefault("export.directory", "./stats")
	v.SetDefault("export.index_name", "time")
	v.SetDefault("export.compression", "snappy")
	v.SetDefault("export.use_dictionary", true)
	v.SetDefault("export.write_statistics", true)
	v.SetDefault("export.data_page_version", "2.0")
	v.SetDefault("export.msgpack_zstd", false)

	// Batch defaults - dynamically calculated based on system resources
	v.SetDefault("batch.workers", getDefaultWorkers())

	v.SetDefault("metrics.textfile_path", "")
}

func getDefaultWorkers() int {
	// One flight per core, capped so a large host does not open too many
	// source connections at once
	workers := runtime.NumCPU()
	if workers > 16 {
		return 16
	}
	return workers
}

// Validate checks values that Load cannot coerce.
func (cfg *Config) Validate() error {
	if cfg.Resample.Interval < time.Second {
		return fmt.Errorf("resample.interval must be at least 1s, got %s", cfg.Resample.Interval)
	}
	switch strings.ToLower(cfg.Resample.ScheduleMode) {
	case "observed", "regular":
	default:
		return fmt.Errorf("invalid resample.schedule_mode: %s (expected 'observed' or 'regular')", cfg.Resample.ScheduleMode)
	}

	switch cfg.Source.Kind {
	case "msgpack":
		if cfg.Source.Path == "" {
			return fmt.Errorf("source.path is required for msgpack sources")
		}
	case "sql":
		switch cfg.Source.Driver {
		case "sqlite3", "duckdb", "pgx":
		default:
			return fmt.Errorf("invalid source.driver: %s (expected 'sqlite3', 'duckdb' or 'pgx')", cfg.Source.Driver)
		}
		if cfg.Source.DSN == "" {
			return fmt.Errorf("source.dsn is required for sql sources")
		}
		if cfg.Source.Table == "" {
			return fmt.Errorf("source.table is required for sql sources")
		}
		if cfg.Source.BreakerMaxFailures < 0 {
			return fmt.Errorf("source.breaker_max_failures cannot be negative")
		}
	default:
		return fmt.Errorf("invalid source.kind: %s (expected 'msgpack' or 'sql')", cfg.Source.Kind)
	}

	switch cfg.Export.Format {
	case "csv", "parquet", "msgpack":
	default:
		return fmt.Errorf("invalid export.format: %s (expected 'csv', 'parquet' or 'msgpack')", cfg.Export.Format)
	}
	switch cfg.Export.Compression {
	case "snappy", "gzip", "zstd", "none":
	default:
		return fmt.Errorf("invalid export.compression: %s", cfg.Export.Compression)
	}
	if cfg.Export.Directory == "" {
		return fmt.Errorf("export.directory is required")
	}

	if cfg.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be at least 1, got %d", cfg.Batch.Workers)
	}
	return nil
}

// ParseSize parses a human-readable size string (e.g., "1GB", "500MB", "100KB") to bytes.
// Supports: B, KB, MB, GB (case-insensitive).
// Returns the size in bytes or an error if the format is invalid.
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(strings.ToUpper(sizeStr))
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Order matters: check longer suffixes first
	type unitInfo struct {
		suffix     string
		multiplier int64
	}
	units := []unitInfo{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, unit := range units {
		if strings.HasSuffix(sizeStr, unit.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(sizeStr, unit.suffix))

			var num float64
			var trailing string
			n, _ := fmt.Sscanf(numStr, "%f%s", &num, &trailing)
			if n == 0 {
				return 0, fmt.Errorf("invalid size number: %s", numStr)
			}
			if trailing != "" {
				// likely an unrecognized unit like "T" in "1TB"
				return 0, fmt.Errorf("invalid size format: %s (use e.g., '1GB', '500MB', '100KB')", sizeStr)
			}
			if num < 0 {
				return 0, fmt.Errorf("size cannot be negative: %s", sizeStr)
			}
			return int64(num * float64(unit.multiplier)), nil
		}
	}

	// Plain number of bytes
	var num int64
	var trailing string
	n, _ := fmt.Sscanf(sizeStr, "%d%s", &num, &trailing)
	if n == 0 || trailing != "" {
		return 0, fmt.Errorf("invalid size format: %s (use e.g., '1GB', '500MB', '100KB')", sizeStr)
	}
	if num < 0 {
		return 0, fmt.Errorf("size cannot be negative: %s", sizeStr)
	}
	return num, nil
}
