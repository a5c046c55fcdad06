package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig sets the default values for the viper configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "wavegen")
	viper.SetDefault("main.loglevel", "info")
	viper.SetDefault("main.logpath", "")

	viper.SetDefault("queue.backend", "local")
	viper.SetDefault("queue.workers", 4)
	viper.SetDefault("queue.maxtasks", 1000)
	viper.SetDefault("queue.retry.maxattempts", 5)
	viper.SetDefault("queue.retry.initialdelay", 30*time.Second)
	viper.SetDefault("queue.retry.maxdelay", 1*time.Hour)
	viper.SetDefault("queue.retry.multiplier", 2.0)

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.queue", "waveforms")

	viper.SetDefault("callback.listen", ":8090")
	viper.SetDefault("callback.path", "/internal/tasks/waveform")

	viper.SetDefault("waveform.width", 800)
	viper.SetDefault("waveform.height", 128)
	viper.SetDefault("waveform.samplerate", 22050)
	viper.SetDefault("waveform.ffmpegpath", "ffmpeg")

	viper.SetDefault("storage.backend", "local")
	viper.SetDefault("storage.path", "artifacts")
	viper.SetDefault("storage.sftp.port", 22)

	viper.SetDefault("catalog.type", "sqlite")
	viper.SetDefault("catalog.sqlite.path", "wavegen.db")

	viper.SetDefault("breaker.failurethreshold", 5)
	viper.SetDefault("breaker.recoverytimeout", 30*time.Second)
	viper.SetDefault("breaker.successthreshold", 2)
}
