package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

const Prefix = "REMIND"

type Config struct {
	StoreDriver     string `split_words:"true" default:"sqlite"`
	SqlitePath      string `split_words:"true" default:"remind.db"`
	DbConnectionUri string `split_words:"true"`

	QueueDriver string        `split_words:"true" default:"redis"`
	RedisAddr   string        `split_words:"true" default:"localhost:6379"`
	ClaimLease  time.Duration `split_words:"true" default:"1m"`

	Transport      string   `default:"local"`
	QueueHostPorts []string `split_words:"true"`
	RemindersTopic string   `split_words:"true" default:"reminders"`
	ConsumerGroup  string   `split_words:"true" default:"reminder-workers"`

	HttpAddr         string        `split_words:"true" default:":8080"`
	ObserverLimit    int           `split_words:"true" default:"100"`
	ObserverInterval time.Duration `split_words:"true" default:"1s"`

	UndoWindow       time.Duration `split_words:"true" default:"4s"`
	RescheduleOnUndo bool          `split_words:"true" default:"true"`
	CancelOnDelete   bool          `split_words:"true" default:"true"`

	NotificationPermission string `split_words:"true" default:"none"`
	NotifyBackend          string `split_words:"true" default:"log"`

	LogLevel  string `split_words:"true" default:"info"`
	LogFormat string `split_words:"true" default:"text"`
}

func Load() (Config, error) {
	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func oneOf(name, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s_%s: %q is not one of %v", Prefix, name, v, allowed)
}

func (c Config) Validate() error {
	checks := []error{
		oneOf("STORE_DRIVER", c.StoreDriver, "sqlite", "postgres"),
		oneOf("QUEUE_DRIVER", c.QueueDriver, "redis", "postgres"),
		oneOf("TRANSPORT", c.Transport, "local", "kafka"),
		oneOf("NOTIFICATION_PERMISSION", c.NotificationPermission, "none", "granted", "denied", "redis"),
		oneOf("NOTIFY_BACKEND", c.NotifyBackend, "log", "redis"),
		oneOf("LOG_FORMAT", c.LogFormat, "text", "json"),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	if (c.StoreDriver == "postgres" || c.QueueDriver == "postgres") && c.DbConnectionUri == "" {
		return fmt.Errorf("%s_DB_CONNECTION_URI is required for the postgres driver", Prefix)
	}
	if c.Transport == "kafka" && len(c.QueueHostPorts) == 0 {
		return fmt.Errorf("%s_QUEUE_HOST_PORTS is required for the kafka transport", Prefix)
	}
	if c.NotificationPermission == "redis" && c.NotifyBackend != "redis" {
		return fmt.Errorf("%s_NOTIFICATION_PERMISSION=redis needs %s_NOTIFY_BACKEND=redis", Prefix, Prefix)
	}
	if c.ObserverLimit <= 0 {
		return fmt.Errorf("%s_OBSERVER_LIMIT must be positive", Prefix)
	}
	return nil
}

// SetupLogging configures the standard logrus logger.
func (c Config) SetupLogging() error {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("%s_LOG_LEVEL: %w", Prefix, err)
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)
	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
