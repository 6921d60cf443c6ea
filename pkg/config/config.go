package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 TICKFLOW_ROUNDS 覆盖 rounds
const EnvPrefix = "TICKFLOW"

// Load 读取 config/{service}.yaml（或当前目录），再用环境变量覆盖
// path 非空时直接读取该文件
func Load(service, path string, out interface{}) (*viper.Viper, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(service)
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	//   TICKFLOW_SINKS_CSV_PATH 覆盖 sinks.csv.path
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := v.Unmarshal(out); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return v, nil
}

// Watch 监听文件变更，重新 Unmarshal 到 out 后回调 onChange
// onChange 收到的 err 非空时 out 可能只更新了一部分
func Watch(v *viper.Viper, out interface{}, onChange func(name string, err error)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		err := v.Unmarshal(out)
		if onChange != nil {
			onChange(e.Name, err)
		}
	})
	v.WatchConfig()
}
