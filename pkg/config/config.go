// Package config defines the node's configuration shape and its
// file/environment loading, grounded on rechain/pkg/config/config.go's
// viper defaulting pattern.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for an artha-core node.
type Config struct {
	Node      NodeConfig      `mapstructure:"node"`
	Network   NetworkConfig   `mapstructure:"network"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Consensus ConsensusConfig `mapstructure:"consensus"`
	Evidence  EvidenceConfig  `mapstructure:"evidence"`
	Mempool   MempoolConfig   `mapstructure:"mempool"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	API       APIConfig       `mapstructure:"api"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// NodeConfig holds node-specific configuration.
type NodeConfig struct {
	ID       string `mapstructure:"id"`
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`
}

// NetworkConfig holds the libp2p transport configuration for C6.
type NetworkConfig struct {
	ListenAddress string   `mapstructure:"listen_address"`
	Peers         []string `mapstructure:"peers"`
	MaxPeers      int      `mapstructure:"max_peers"`
}

// StorageConfig selects and configures the block/state storage backend.
type StorageConfig struct {
	Engine    string `mapstructure:"engine"` // "badger" or "leveldb"
	Path      string `mapstructure:"path"`
	CacheSize int64  `mapstructure:"cache_size"`
	Sync      bool   `mapstructure:"sync"`
}

// ConsensusConfig holds C1's quorum policy and round-step timeouts.
type ConsensusConfig struct {
	QuorumPolicy      string        `mapstructure:"quorum_policy"` // "bft" or "svbft"
	QuorumFraction    float64       `mapstructure:"quorum_fraction"`
	MinVotes          int           `mapstructure:"min_votes"`
	MaxTxsPerBlock    int           `mapstructure:"max_transactions_per_block"`
	MaxBlockSize      int64         `mapstructure:"max_block_size"`
	BlockTime         time.Duration `mapstructure:"block_time"`
	TimeoutPropose    time.Duration `mapstructure:"timeout_propose"`
	TimeoutPrevote    time.Duration `mapstructure:"timeout_prevote"`
	TimeoutPrecommit  time.Duration `mapstructure:"timeout_precommit"`
	TimeoutCommit     time.Duration `mapstructure:"timeout_commit"`
}

// EvidenceConfig holds C3's evidence pool retention/acceptance thresholds.
type EvidenceConfig struct {
	MaxAgeHeight  uint64 `mapstructure:"max_evidence_age"`
	MinEvidenceCount int `mapstructure:"min_evidence_count"`
}

// MempoolConfig holds C5's bounded priority mempool sizing and eviction
// policy.
type MempoolConfig struct {
	MaxSize            int  `mapstructure:"max_size"`
	CompareBeforeEvict bool `mapstructure:"compare_before_evict"`
}

// SnapshotConfig holds the internal/snapshot archival sink's object-store
// connection, replacing the teacher's generic CAS config.
type SnapshotConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	// EveryNBlocks is loaded from every_n_blocks but read by no component:
	// the node archives neither blocks nor state snapshots on commit.
	EveryNBlocks uint64 `mapstructure:"every_n_blocks"`
}

// APIConfig holds HTTP and gRPC admin-surface configuration.
type APIConfig struct {
	REST RESTConfig `mapstructure:"rest"`
	GRPC GRPCConfig `mapstructure:"grpc"`
}

// RESTConfig holds HTTP API configuration.
type RESTConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// GRPCConfig holds gRPC health-service configuration.
type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// SecurityConfig holds TLS, state-at-rest encryption, and audit logging
// configuration.
type SecurityConfig struct {
	TLSEnabled   bool   `mapstructure:"tls_enabled"`
	CertFile     string `mapstructure:"cert_file"`
	KeyFile      string `mapstructure:"key_file"`
	CAFile       string `mapstructure:"ca_file"`
	EncryptAtRest bool  `mapstructure:"encrypt_at_rest"`
	HSMEnabled   bool   `mapstructure:"hsm_enabled"`
	AuditLogPath string `mapstructure:"audit_log_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// MetricsConfig holds metrics-endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Path    string `mapstructure:"path"`
}

// DefaultConfig returns a default configuration for a single-node devnet.
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			ID:       "",
			DataDir:  "./data",
			LogLevel: "info",
		},
		Network: NetworkConfig{
			ListenAddress: "/ip4/0.0.0.0/tcp/26656",
			Peers:         []string{},
			MaxPeers:      50,
		},
		Storage: StorageConfig{
			Engine:    "badger",
			Path:      "",
			CacheSize: 100 * 1024 * 1024,
			Sync:      true,
		},
		Consensus: ConsensusConfig{
			QuorumPolicy:     "bft",
			QuorumFraction:   2.0 / 3.0,
			MinVotes:         1,
			MaxTxsPerBlock:   1000,
			MaxBlockSize:     1000000,
			BlockTime:        1 * time.Second,
			TimeoutPropose:   3 * time.Second,
			TimeoutPrevote:   1 * time.Second,
			TimeoutPrecommit: 1 * time.Second,
			TimeoutCommit:    1 * time.Second,
		},
		Evidence: EvidenceConfig{
			MaxAgeHeight:     100000,
			MinEvidenceCount: 1,
		},
		Mempool: MempoolConfig{
			MaxSize:            5000,
			CompareBeforeEvict: false,
		},
		Snapshot: SnapshotConfig{
			Enabled:      false,
			Endpoint:     "localhost:9000",
			Bucket:       "artha-snapshots",
			AccessKey:    "artha",
			SecretKey:    "artha-secret",
			UseSSL:       false,
			EveryNBlocks: 1000,
		},
		API: APIConfig{
			REST: RESTConfig{
				Enabled: true,
				Address: "0.0.0.0:1317",
			},
			GRPC: GRPCConfig{
				Enabled: true,
				Address: "0.0.0.0:9090",
			},
		},
		Security: SecurityConfig{
			TLSEnabled:    false,
			EncryptAtRest: false,
			HSMEnabled:    false,
			AuditLogPath:  "./logs/audit.log",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: "0.0.0.0:9091",
			Path:    "/metrics",
		},
	}
}

// LoadConfig loads configuration from a file (if configPath is non-empty)
// layered over defaults, then ARTHA_-prefixed environment variables.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()

	v.SetDefault("node.data_dir", cfg.Node.DataDir)
	v.SetDefault("node.log_level", cfg.Node.LogLevel)
	v.SetDefault("network.listen_address", cfg.Network.ListenAddress)
	v.SetDefault("network.max_peers", cfg.Network.MaxPeers)
	v.SetDefault("storage.engine", cfg.Storage.Engine)
	v.SetDefault("storage.cache_size", cfg.Storage.CacheSize)
	v.SetDefault("storage.sync", cfg.Storage.Sync)
	v.SetDefault("consensus.quorum_policy", cfg.Consensus.QuorumPolicy)
	v.SetDefault("consensus.quorum_fraction", cfg.Consensus.QuorumFraction)
	v.SetDefault("consensus.min_votes", cfg.Consensus.MinVotes)
	v.SetDefault("consensus.max_transactions_per_block", cfg.Consensus.MaxTxsPerBlock)
	v.SetDefault("consensus.max_block_size", cfg.Consensus.MaxBlockSize)
	v.SetDefault("consensus.block_time", cfg.Consensus.BlockTime)
	v.SetDefault("consensus.timeout_propose", cfg.Consensus.TimeoutPropose)
	v.SetDefault("consensus.timeout_prevote", cfg.Consensus.TimeoutPrevote)
	v.SetDefault("consensus.timeout_precommit", cfg.Consensus.TimeoutPrecommit)
	v.SetDefault("consensus.timeout_commit", cfg.Consensus.TimeoutCommit)
	v.SetDefault("evidence.max_evidence_age", cfg.Evidence.MaxAgeHeight)
	v.SetDefault("evidence.min_evidence_count", cfg.Evidence.MinEvidenceCount)
	v.SetDefault("mempool.max_size", cfg.Mempool.MaxSize)
	v.SetDefault("mempool.compare_before_evict", cfg.Mempool.CompareBeforeEvict)
	v.SetDefault("snapshot.enabled", cfg.Snapshot.Enabled)
	v.SetDefault("snapshot.endpoint", cfg.Snapshot.Endpoint)
	v.SetDefault("snapshot.bucket", cfg.Snapshot.Bucket)
	v.SetDefault("snapshot.access_key", cfg.Snapshot.AccessKey)
	v.SetDefault("snapshot.secret_key", cfg.Snapshot.SecretKey)
	v.SetDefault("snapshot.use_ssl", cfg.Snapshot.UseSSL)
	v.SetDefault("snapshot.every_n_blocks", cfg.Snapshot.EveryNBlocks)
	v.SetDefault("api.rest.enabled", cfg.API.REST.Enabled)
	v.SetDefault("api.rest.address", cfg.API.REST.Address)
	v.SetDefault("api.grpc.enabled", cfg.API.GRPC.Enabled)
	v.SetDefault("api.grpc.address", cfg.API.GRPC.Address)
	v.SetDefault("security.tls_enabled", cfg.Security.TLSEnabled)
	v.SetDefault("security.encrypt_at_rest", cfg.Security.EncryptAtRest)
	v.SetDefault("security.hsm_enabled", cfg.Security.HSMEnabled)
	v.SetDefault("security.audit_log_path", cfg.Security.AuditLogPath)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)
	v.SetDefault("logging.max_size", cfg.Logging.MaxSize)
	v.SetDefault("logging.max_backups", cfg.Logging.MaxBackups)
	v.SetDefault("logging.max_age", cfg.Logging.MaxAge)
	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.address", cfg.Metrics.Address)
	v.SetDefault("metrics.path", cfg.Metrics.Path)

	v.SetEnvPrefix("ARTHA")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal config: %w", err)
	}

	return cfg, nil
}
