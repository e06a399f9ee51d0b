package config

import "strings"

// Option 修改 Config 的加载参数，只在 Load 之前生效
type Option func(*Config)

// WithConfigFile 直接指定文件路径，优先于 name/type/paths 查找
func WithConfigFile(path string) Option {
	return func(c *Config) { c.file.path = path }
}

// WithConfigName 按名称在搜索路径中查找，扩展名由 viper 推断
func WithConfigName(name string) Option {
	return func(c *Config) { c.file.name = name }
}

// WithConfigType 文件无扩展名时指定格式：yaml、json、toml
func WithConfigType(typ string) Option {
	return func(c *Config) { c.file.typ = typ }
}

// WithConfigPaths 追加搜索路径
func WithConfigPaths(paths ...string) Option {
	return func(c *Config) { c.file.paths = append(c.file.paths, paths...) }
}

// WithAutoWatch Load 成功后立即监听文件变化
func WithAutoWatch(watch bool) Option {
	return func(c *Config) { c.autoWatch = watch }
}

// WithOnChange 文件写入后回调，在 fsnotify 协程中执行
func WithOnChange(fn func()) Option {
	return func(c *Config) { c.onChange = fn }
}

// WithOnError 监听相关错误的回调；未设置时写到 stderr
func WithOnError(fn func(error)) Option {
	return func(c *Config) { c.onError = fn }
}

// WithDefaults 键使用点号路径，如 realtime.chat.queue_size
func WithDefaults(defaults map[string]any) Option {
	return func(c *Config) { c.defaults = defaults }
}

// WithEnvPrefix 开启环境变量覆盖，REALTIME + token 读取 REALTIME_TOKEN
func WithEnvPrefix(prefix string) Option {
	return func(c *Config) { c.env.prefix = prefix }
}

// WithEnvKeyReplacer 嵌套键映射到环境变量名，通常把 "." 换成 "_"
func WithEnvKeyReplacer(r *strings.Replacer) Option {
	return func(c *Config) { c.env.replacer = r }
}
