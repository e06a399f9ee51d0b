package config

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
)

// startWatch 开始监控配置文件变更，调用方必须持有 mu
func (c *Config) startWatch() {
	if c.watching {
		return
	}
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		c.mu.RLock()
		watching := c.watching
		onChange := c.onChange
		c.mu.RUnlock()

		if !watching || !e.Has(fsnotify.Write|fsnotify.Create) {
			return
		}
		if onChange != nil {
			onChange()
		}
	})
	c.viper.WatchConfig()
	c.watching = true
}

// StartWatch 开始监控配置文件，必须在 Load 之后调用
func (c *Config) StartWatch() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.viper.ConfigFileUsed() == "" {
		err := ErrConfigReadFailed.WithMessage("config: watch before load")
		c.reportErrorLocked(err)
		return err
	}
	c.startWatch()
	return nil
}

// StopWatch 停止触发变更回调
// viper 未提供停止底层 fsnotify watcher 的方法，底层 watcher 在 Config 生命周期内持续运行
func (c *Config) StopWatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watching = false
}

// IsWatching 是否正在监控
func (c *Config) IsWatching() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watching
}

func (c *Config) reportErrorLocked(err error) {
	if c.onError != nil {
		go c.onError(err)
		return
	}
	fmt.Fprintf(os.Stderr, "[config] %v\n", err)
}
