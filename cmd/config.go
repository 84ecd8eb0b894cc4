package main

import "time"

type Config struct {
	Host                      string        `env:"HOST,default=localhost"`
	Port                      int           `env:"PORT,default=8080"`
	PublicURL                 string        `env:"PUBLIC_URL,default=http://localhost:8080"`
	JWTSecret                 string        `env:"JWT_SECRET,required=true"`
	LogLevel                  string        `env:"LOG_LEVEL,required=true"`
	BadgerFilepath            string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath             string        `env:"BLUGE_FILEPATH,required=true"`
	UploadsDir                string        `env:"UPLOADS_DIR,default=./uploads"`
	LimitMessages             *int          `env:"LIMIT_MESSAGES"`
	ModerationCharReplacement rune          `env:"MODERATION_CHARACTER_REPLACEMENT,required=true"`
	SinkTimeout               time.Duration `env:"SINK_TIMEOUT,required=true"`
	RestartInterval           time.Duration `env:"RESTART_INTERVAL,required=true"`
	TypingTTL                 time.Duration `env:"TYPING_TTL,default=6s"`
	TypingSweepInterval       time.Duration `env:"TYPING_SWEEP_INTERVAL,default=2s"`
	RetentionMaxAge           time.Duration `env:"RETENTION_MAX_AGE,default=720h"`
	RetentionInterval         time.Duration `env:"RETENTION_INTERVAL,default=1h"`
	HealthInterval            time.Duration `env:"HEALTH_INTERVAL,default=30s"`
	ShutdownTimeout           time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}
