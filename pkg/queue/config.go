package queue

import "time"

// Config carries worker and broker settings shared by every channel queue.
type Config struct {
	KeyPrefix          string        `env:"QUEUE_KEY_PREFIX" envDefault:"posnotify:queue"`
	PollInterval       time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"500ms"`
	LockTimeout        time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	MaxConcurrentTasks int           `env:"QUEUE_MAX_CONCURRENT_TASKS" envDefault:"10"`
}
