package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	cachecoordinator "github.com/huykn/cache-coordinator"
	"github.com/huykn/cache-coordinator/types"
)

// coordinatorSettings are the coordinator knobs shared by serve and simulate.
type coordinatorSettings struct {
	BatchDelay       time.Duration
	CriticalInterval time.Duration
	Cooldowns        map[types.Priority]time.Duration
	GroupConcurrency int
	ContextTimeout   time.Duration
}

func addCoordinatorFlags(fs *pflag.FlagSet) {
	defaults := cachecoordinator.DefaultConfig()
	fs.Duration("batch-delay", defaults.BatchDelay, "Quiet period before a batch drain")
	fs.Duration("critical-interval", defaults.CriticalInterval, "Minimum spacing between critical drains")
	fs.Duration("cooldown-low", defaults.Cooldowns[types.PriorityLow], "Cooldown for low priority keys")
	fs.Duration("cooldown-normal", defaults.Cooldowns[types.PriorityNormal], "Cooldown for normal priority keys")
	fs.Duration("cooldown-high", defaults.Cooldowns[types.PriorityHigh], "Cooldown for high priority keys")
	fs.Int("group-concurrency", defaults.GroupConcurrency, "Concurrent store calls per priority group")
	fs.Duration("drain-timeout", defaults.ContextTimeout, "Deadline for the store calls of one drain (0 disables)")
}

var coordinatorFlags = []string{
	"batch-delay", "critical-interval", "cooldown-low", "cooldown-normal", "cooldown-high",
	"group-concurrency", "drain-timeout",
}

func readCoordinatorSettings(v *viper.Viper) coordinatorSettings {
	return coordinatorSettings{
		BatchDelay:       v.GetDuration("batch-delay"),
		CriticalInterval: v.GetDuration("critical-interval"),
		Cooldowns: map[types.Priority]time.Duration{
			types.PriorityLow:      v.GetDuration("cooldown-low"),
			types.PriorityNormal:   v.GetDuration("cooldown-normal"),
			types.PriorityHigh:     v.GetDuration("cooldown-high"),
			types.PriorityCritical: 0,
		},
		GroupConcurrency: v.GetInt("group-concurrency"),
		ContextTimeout:   v.GetDuration("drain-timeout"),
	}
}

// apply copies the settings onto cfg.
func (s coordinatorSettings) apply(cfg *cachecoordinator.Config) {
	cfg.BatchDelay = s.BatchDelay
	cfg.CriticalInterval = s.CriticalInterval
	cfg.Cooldowns = s.Cooldowns
	cfg.GroupConcurrency = s.GroupConcurrency
	cfg.ContextTimeout = s.ContextTimeout
}

// bindFlags binds each named flag of fs to the viper key of the same name.
// Subcommands share flag names, so only the running command binds its flags.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, names ...string) error {
	for _, name := range names {
		if err := v.BindPFlag(name, fs.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// loadConfigFile merges the YAML file named by --config, if any. Flags set
// on the command line and environment variables take precedence.
func loadConfigFile(v *viper.Viper) error {
	path := v.GetString("config")
	if path == "" {
		return nil
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return fmt.Errorf("config file %s not found", path)
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}
