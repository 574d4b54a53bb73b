package models

// MConfig Structure
type MConfig struct {
	Name     string         `yaml:"name"`
	Host     string         `yaml:"host"`
	Port     int            `yaml:"port"`
	LogLevel string         `yaml:"log_level"`
	Storage  MStorageConfig `yaml:"storage"`
	Source   MSourceConfig  `yaml:"source"`
	Cache    MCacheConfig   `yaml:"cache"`
}

type MStorageConfig struct {
	Backend            string `yaml:"backend"` // memory | file | sqlite | postgres
	FilePath           string `yaml:"file_path"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
}

type MSourceConfig struct {
	Endpoint               string `yaml:"endpoint"`
	RequestTimeoutSeconds  int    `yaml:"request_timeout_seconds"`
	RefreshIntervalSeconds int    `yaml:"refresh_interval_seconds"`
	RetentionDays          int    `yaml:"retention_days"`
	Granularity            string `yaml:"timestamp_granularity"` // instant | day
}

type MCacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}
