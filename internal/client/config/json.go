package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/dmitrijs2005/radsync/internal/flagx"
	"github.com/dmitrijs2005/radsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Intervals use
// timex.Duration so they can be written as "15m" or integer nanoseconds.
// Absent keys leave the current value alone.
type JsonConfig struct {
	BaseURL             string          `json:"base_url"`
	DBPath              string          `json:"db_path"`
	QueueDir            string          `json:"queue_dir"`
	DeltaInterval       *timex.Duration `json:"delta_interval"`
	FlushInterval       *timex.Duration `json:"flush_interval"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	RequestTimeout      *timex.Duration `json:"request_timeout"`
	DeviceID            string          `json:"device_id"`
	ActorID             string          `json:"actor_id"`
	LogFile             string          `json:"log_file"`
	LogLevel            string          `json:"log_level"`
	PersistValidators   *bool           `json:"persist_validators"`
	BatchSize           int             `json:"batch_size"`
	MaxDeltaRounds      int             `json:"max_delta_rounds"`
}

// parseJson overlays cfg with the JSON file named by -c/-config in args.
func parseJson(cfg *Config, args []string) error {
	path := flagx.JsonConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.BaseURL, jc.BaseURL)
	setString(&cfg.DBPath, jc.DBPath)
	setString(&cfg.QueueDir, jc.QueueDir)
	setString(&cfg.DeviceID, jc.DeviceID)
	setString(&cfg.ActorID, jc.ActorID)
	setString(&cfg.LogFile, jc.LogFile)
	setString(&cfg.LogLevel, jc.LogLevel)

	if jc.DeltaInterval != nil {
		cfg.DeltaInterval = jc.DeltaInterval.Duration
	}
	if jc.FlushInterval != nil {
		cfg.FlushInterval = jc.FlushInterval.Duration
	}
	if jc.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.PersistValidators != nil {
		cfg.PersistValidators = *jc.PersistValidators
	}
	if jc.BatchSize > 0 {
		cfg.BatchSize = jc.BatchSize
	}
	if jc.MaxDeltaRounds > 0 {
		cfg.MaxDeltaRounds = jc.MaxDeltaRounds
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
