package logger

// RotateConfig 文件轮转配置（lumberjack）
type RotateConfig struct {
	Filename   string `mapstructure:"filename"`    // 日志文件路径
	MaxSize    int    `mapstructure:"max_size"`    // 单文件最大大小（MB，默认 100）
	MaxAge     int    `mapstructure:"max_age"`     // 文件保留天数（默认 30）
	MaxBackups int    `mapstructure:"max_backups"` // 最多保留文件数（默认 10）
	LocalTime  bool   `mapstructure:"local_time"`
	Compress   bool   `mapstructure:"compress"`
}

func (r *RotateConfig) setDefaults() {
	if r.MaxSize == 0 {
		r.MaxSize = 100
	}
	if r.MaxAge == 0 {
		r.MaxAge = 30
	}
	if r.MaxBackups == 0 {
		r.MaxBackups = 10
	}
}
