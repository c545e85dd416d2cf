package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Queue names as provisioned by the infrastructure stack.
const (
	QueueBuildUpdates      = "build-updates-queue"
	QueueECSSteadyState    = "ecs-steady-state-queue"
	QueueScaleInUpdates    = "scalein-staging-updates-queue"
	QueueDeploymentUpdates = "deployment-updates-queue"
)

const (
	defaultMaxMessages       = 10
	defaultWaitSeconds       = 20
	defaultVisibilityTimeout = 60
	defaultConcurrency       = 4
	defaultHandlerTimeout    = 30 * time.Second
)

// ListenerConfig configures the notification queue listeners.
type ListenerConfig struct {
	Queues []QueueConfig `mapstructure:"queues"`
}

// QueueConfig configures polling of a single queue.
type QueueConfig struct {
	Name              string        `mapstructure:"name"`
	URL               string        `mapstructure:"url"`
	Enabled           bool          `mapstructure:"enabled"`
	MaxMessages       int32         `mapstructure:"max_messages"`
	WaitSeconds       int32         `mapstructure:"wait_seconds"`
	VisibilityTimeout int32         `mapstructure:"visibility_timeout"`
	Concurrency       int           `mapstructure:"concurrency"`
	HandlerTimeout    time.Duration `mapstructure:"handler_timeout"`
}

// Queue returns the configuration of the named queue.
func (c ListenerConfig) Queue(name string) (QueueConfig, bool) {
	for _, q := range c.Queues {
		if q.Name == name {
			return q, true
		}
	}
	return QueueConfig{}, false
}

func DefaultListenerConfig() ListenerConfig {
	names := []string{QueueBuildUpdates, QueueECSSteadyState, QueueScaleInUpdates, QueueDeploymentUpdates}
	queues := make([]QueueConfig, 0, len(names))
	for _, name := range names {
		queues = append(queues, QueueConfig{Name: name, Enabled: true})
	}
	return normalizeListenerConfig(ListenerConfig{Queues: queues})
}

type ListenerConfigHolder struct {
	current atomic.Value // holds ListenerConfig
}

// NewListenerConfigHolder loads the listener config file and watches it for changes.
func NewListenerConfigHolder(cfg Config, log *zap.Logger) (*ListenerConfigHolder, error) {
	return LoadListenerConfig(cfg.ListenerConfigPath, log)
}

func LoadListenerConfig(path string, log *zap.Logger) (*ListenerConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.listener")

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("listener")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/console")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CONSOLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		v.SetDefault("listener.queues", DefaultListenerConfig().Queues)
	}

	cfg, err := decodeListenerConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &ListenerConfigHolder{}
	holder.current.Store(cfg)

	if v.ConfigFileUsed() != "" {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeListenerConfig(v)
			if err != nil {
				log.Warn("listener config reload ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("listener config reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

// NewStaticListenerConfig wraps a fixed config, mainly for tests.
func NewStaticListenerConfig(cfg ListenerConfig) *ListenerConfigHolder {
	holder := &ListenerConfigHolder{}
	holder.current.Store(normalizeListenerConfig(cfg))
	return holder
}

func (h *ListenerConfigHolder) Get() ListenerConfig {
	return h.current.Load().(ListenerConfig)
}

func decodeListenerConfig(v *viper.Viper) (ListenerConfig, error) {
	var cfg ListenerConfig
	if err := v.UnmarshalKey("listener", &cfg); err != nil {
		return ListenerConfig{}, err
	}
	cfg = normalizeListenerConfig(cfg)
	if err := validateListenerConfig(cfg); err != nil {
		return ListenerConfig{}, err
	}
	return cfg, nil
}

func normalizeListenerConfig(cfg ListenerConfig) ListenerConfig {
	out := ListenerConfig{Queues: make([]QueueConfig, 0, len(cfg.Queues))}
	for _, q := range cfg.Queues {
		q.Name = strings.TrimSpace(q.Name)
		q.URL = strings.TrimSpace(q.URL)
		if q.MaxMessages <= 0 || q.MaxMessages > 10 {
			q.MaxMessages = defaultMaxMessages
		}
		if q.WaitSeconds <= 0 || q.WaitSeconds > 20 {
			q.WaitSeconds = defaultWaitSeconds
		}
		if q.VisibilityTimeout <= 0 {
			q.VisibilityTimeout = defaultVisibilityTimeout
		}
		if q.Concurrency <= 0 {
			q.Concurrency = defaultConcurrency
		}
		if q.HandlerTimeout <= 0 {
			q.HandlerTimeout = defaultHandlerTimeout
		}
		out.Queues = append(out.Queues, q)
	}
	return out
}

func validateListenerConfig(cfg ListenerConfig) error {
	seen := make(map[string]struct{}, len(cfg.Queues))
	for _, q := range cfg.Queues {
		if q.Name == "" {
			return errors.New("listener.queues[].name cannot be empty")
		}
		if _, ok := seen[q.Name]; ok {
			return fmt.Errorf("listener queue %q declared twice", q.Name)
		}
		seen[q.Name] = struct{}{}
	}
	return nil
}
