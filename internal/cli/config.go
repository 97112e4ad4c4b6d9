package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/shelf/internal/paths"
	"github.com/mesh-intelligence/shelf/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyBackend   = "backend"
	cfgKeyDataDir   = "data_dir"
	cfgKeyPartition = "partition"
	cfgKeyUserID    = "user_id"
	cfgKeyLogLevel  = "log_level"
	cfgKeyLogFormat = "log_format"

	defaultUser     = "local"
	defaultLogLevel = "warn"
)

// configFile is the structure written to a fresh config.yaml.
type configFile struct {
	Backend   string `yaml:"backend"`
	DataDir   string `yaml:"data_dir,omitempty"`
	Partition string `yaml:"partition,omitempty"`
	UserID    string `yaml:"user_id,omitempty"`
	LogLevel  string `yaml:"log_level,omitempty"`
}

// loadConfig reads config.yaml from configDir. A missing file is not an
// error. SHELF_PARTITION and SHELF_USER override the file.
func loadConfig(configDir string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetDefault(cfgKeyUserID, defaultUser)
	v.SetDefault(cfgKeyLogLevel, defaultLogLevel)
	v.SetDefault(cfgKeyLogFormat, "text")
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	if err := v.BindEnv(cfgKeyPartition, "SHELF_PARTITION"); err != nil {
		return nil, err
	}
	if err := v.BindEnv(cfgKeyUserID, "SHELF_USER"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// resolveConfig builds the partition config: flags > env > config.yaml >
// defaults, with the data dir resolved by paths.ResolveDataDir.
func resolveConfig() (types.Config, error) {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve config dir: %w", err)
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return types.Config{}, err
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.DataDir, err = paths.ResolveDataDir(flags.dataDir, cfg.DataDir); err != nil {
		return types.Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	if flags.partition != "" {
		cfg.Partition = flags.partition
	}
	if flags.user != "" {
		cfg.UserID = flags.user
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	return cfg, nil
}

// writeConfigIfMissing creates config.yaml with default values. An existing
// file is left alone.
func writeConfigIfMissing(configDir, dataDir string) (string, error) {
	path := filepath.Join(configDir, configFileExt)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("stat config file: %w", err)
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(&configFile{
		Backend:  types.BackendSQLite,
		DataDir:  dataDir,
		UserID:   defaultUser,
		LogLevel: defaultLogLevel,
	})
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return path, os.WriteFile(path, data, 0o644)
}
