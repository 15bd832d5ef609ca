package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"go-notification-ws/internal/infrastructure/logger"
)

// WatchLogLevel re-applies log.level whenever the config file is written.
// Other settings need a restart. A bad level keeps the previous one.
func WatchLogLevel(v *viper.Viper, log logger.Logger) {
	if v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		level, err := logger.ParseLevel(v.GetString("log.level"))
		if err != nil {
			log.Errorf("config reload: %v, keeping previous log level", err)
			return
		}
		log.SetLevel(level)
		log.Infof("config reloaded from %s, log level %s", e.Name, level)
	})
	v.WatchConfig()
}
