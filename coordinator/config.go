package coordinator

import (
	"os"
	"runtime"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds every option needed to open a database directory. Bucket
// counts are fixed at create time: reopening a directory with different
// bucket counts than it was created with silently corrupts bucket
// selection, since the modulus changes.
type Config struct {
	Directory string `yaml:"directory"`

	IndexAddresses bool    `yaml:"index_addresses"`
	FlushWrites    bool    `yaml:"flush_writes"`
	FileGrowthRate float64 `yaml:"file_growth_rate"`

	BlockTableBuckets       uint64 `yaml:"block_table_buckets"`
	TransactionTableBuckets uint64 `yaml:"transaction_table_buckets"`
	SpendTableBuckets       uint64 `yaml:"spend_table_buckets"`
	HistoryTableBuckets     uint64 `yaml:"history_table_buckets"`

	CacheCapacity int `yaml:"cache_capacity"`

	// Workers bounds the size of the transaction-push bucket dispatcher
	// that a reorganization uses for each incoming block: such a block
	// uses min(Workers, tx_count) buckets. PushBlock and Bootstrap
	// confirm a block's transactions sequentially.
	Workers int `yaml:"workers"`
}

// DefaultConfig returns sensible defaults for a freshly created
// database directory at dir.
func DefaultConfig(dir string) Config {
	return Config{
		Directory:               dir,
		IndexAddresses:          true,
		FlushWrites:             true,
		FileGrowthRate:          1.5,
		BlockTableBuckets:       1 << 20,
		TransactionTableBuckets: 1 << 22,
		SpendTableBuckets:       1 << 20,
		HistoryTableBuckets:     1 << 20,
		CacheCapacity:           250_000,
		Workers:                 runtime.NumCPU(),
	}
}

// LoadConfig reads a yaml-encoded Config from path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "reading configuration file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parsing configuration file")
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as yaml.
func SaveConfig(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encoding configuration")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "writing configuration file")
}
