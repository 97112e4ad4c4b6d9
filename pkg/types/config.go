package types

import "errors"

// Config holds backend selection and parameters for opening a partition.
type Config struct {
	Backend   string `json:"backend" yaml:"backend" mapstructure:"backend"`
	DataDir   string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
	Partition string `json:"partition" yaml:"partition" mapstructure:"partition"`
	UserID    string `json:"user_id" yaml:"user_id" mapstructure:"user_id"`
	LogLevel  string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" mapstructure:"log_format"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
)

// DefaultPartition is used when Config.Partition is empty.
const DefaultPartition = "default"

// Config validation errors.
var (
	ErrBackendEmpty     = errors.New("backend must not be empty")
	ErrBackendUnknown   = errors.New("unknown backend")
	ErrPartitionInvalid = errors.New("partition name must not contain path separators")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	for _, r := range c.Partition {
		if r == '/' || r == '\\' {
			return ErrPartitionInvalid
		}
	}
	if c.Partition == ".." || c.Partition == "." {
		return ErrPartitionInvalid
	}
	return nil
}

// PartitionName returns the partition, falling back to DefaultPartition.
func (c Config) PartitionName() string {
	if c.Partition == "" {
		return DefaultPartition
	}
	return c.Partition
}
