package buildCFG

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"

	"slotbot/internal/repo"
	"slotbot/internal/scheduler"
)

type ServerConfig struct {
	Port     string
	PageSize int
}

type RabbitConfig struct {
	Url      string
	Exchange string
	Queue    string
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		port = "8080"
		log.Warn().Msg("server.port not set, defaulting to 8080")
	}
	pageSize := cfg.GetInt("server.page_size")
	if pageSize <= 0 {
		pageSize = 50
	}
	return ServerConfig{Port: port, PageSize: pageSize}
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	masterDSN := cfg.GetString("database.master_dsn")
	if masterDSN == "" {
		return "", nil, nil, fmt.Errorf("database.master_dsn is required")
	}

	slaveDSNs := cfg.GetStringSlice("database.slave_dsns")

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("database.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: parseDuration(cfg.GetString("database.conn_max_lifetime"), time.Hour, log),
	}

	return masterDSN, slaveDSNs, opts, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Url:      cfg.GetString("rabbit.url"),
		Exchange: cfg.GetString("rabbit.exchange"),
		Queue:    cfg.GetString("rabbit.queue"),
	}
	if rc.Url == "" {
		return rc, fmt.Errorf("rabbit.url is required")
	}
	if rc.Exchange == "" {
		rc.Exchange = "slotbot.notices"
	}
	if rc.Queue == "" {
		rc.Queue = "notices"
	}
	log.Info().Str("exchange", rc.Exchange).Str("queue", rc.Queue).Msg("rabbit config loaded")
	return rc, nil
}

func BuildBookingRules(cfg *config.Config, log *zerolog.Logger) repo.Rules {
	return repo.Rules{
		NoteMaxLen:       cfg.GetInt("booking.note_max_len"),
		LateCancelWindow: parseDuration(cfg.GetString("booking.late_cancel_window"), 0, log),
	}
}

func BuildSchedulerConfig(cfg *config.Config, log *zerolog.Logger) scheduler.Config {
	return scheduler.Config{
		ReminderInterval:       parseDuration(cfg.GetString("scheduler.reminder_interval"), time.Minute, log),
		SweepInterval:          parseDuration(cfg.GetString("scheduler.sweep_interval"), time.Hour, log),
		PurgeInterval:          parseDuration(cfg.GetString("scheduler.purge_interval"), 24*time.Hour, log),
		BlacklistRetentionDays: cfg.GetInt("scheduler.blacklist_retention_days"),
	}
}

func parseDuration(raw string, def time.Duration, log *zerolog.Logger) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Warn().Str("value", raw).Msg("invalid duration in config, using default")
		return def
	}
	return d
}
