package config

import (
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
)

// Config - Global variable to export
var Config AppConfig

// AppConfig defines the application configuration.
type AppConfig struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Minio    MinioConfig    `koanf:"minio"`
	Milvus   MilvusConfig   `koanf:"milvus"`
	Cleanup  CleanupConfig  `koanf:"cleanup"`
}

// ServerConfig defines server configurations.
type ServerConfig struct {
	Debug bool `koanf:"debug"`
}

// DatabaseConfig related to database
type DatabaseConfig struct {
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Name     string `koanf:"name"`
	Version  uint   `koanf:"version"`
	TimeZone string `koanf:"timezone"`
	Pool     struct {
		IdleConnections int           `koanf:"idleconnections"`
		MaxConnections  int           `koanf:"maxconnections"`
		ConnLifeTime    time.Duration `koanf:"connlifetime"`
	} `koanf:"pool"`
}

// MinioConfig is the object storage configuration.
type MinioConfig struct {
	Host       string `koanf:"host"`
	Port       string `koanf:"port"`
	User       string `koanf:"user"`
	Password   string `koanf:"password"`
	BucketName string `koanf:"bucketname"`
	Secure     bool   `koanf:"secure"`
}

// MilvusConfig is the vector database configuration.
type MilvusConfig struct {
	Host string `koanf:"host"`
	Port string `koanf:"port"`
}

// CleanupConfig tunes the deletion reconciler and its worker pool.
type CleanupConfig struct {
	// ReconcileInterval is the idle time between reconciliation ticks.
	ReconcileInterval time.Duration `koanf:"reconcileinterval"`
	// KnowledgeBaseBatchSize caps the soft-deleted knowledge bases
	// processed per tick.
	KnowledgeBaseBatchSize int `koanf:"knowledgebasebatchsize"`
	// ChatBatchSize caps the soft-deleted chats processed per tick.
	ChatBatchSize int `koanf:"chatbatchsize"`
	// PoolSize is the process-wide cap on concurrent vector store cleanup
	// operations.
	PoolSize int `koanf:"poolsize"`
}

// Init - Assign global config to decoded config struct
func Init(filePath string) error {
	k := koanf.New(".")
	parser := yaml.Parser()

	if err := k.Load(file.Provider(filePath), parser); err != nil {
		log.Fatal(err.Error())
	}

	if err := k.Load(env.ProviderWithValue("CFG_", ".", func(s string, v string) (string, any) {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "CFG_")), "_", ".")
		if strings.Contains(v, ",") {
			return key, strings.Split(strings.TrimSpace(v), ",")
		}
		return key, v
	}), nil); err != nil {
		return err
	}

	if err := k.Unmarshal("", &Config); err != nil {
		return err
	}

	// Defaults that keep the reconciler safe when the section is omitted.
	if Config.Cleanup.ReconcileInterval <= 0 {
		Config.Cleanup.ReconcileInterval = 60 * time.Second
	}
	if Config.Cleanup.KnowledgeBaseBatchSize <= 0 {
		Config.Cleanup.KnowledgeBaseBatchSize = 50
	}
	if Config.Cleanup.ChatBatchSize <= 0 {
		Config.Cleanup.ChatBatchSize = 100
	}
	if Config.Cleanup.PoolSize <= 0 {
		Config.Cleanup.PoolSize = 10
	}

	return ValidateConfig(&Config)
}

// ValidateConfig is for custom validation rules for the configuration
func ValidateConfig(cfg *AppConfig) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	return nil
}

var defaultConfigPath = "config/config.yaml"

// ParseConfigFlag allows clients to specify the relative path to the file
// from which the configuration will be loaded.
func ParseConfigFlag() string {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	configPath := fs.String("file", defaultConfigPath, "configuration file")
	_ = fs.Parse(os.Args[1:])

	return *configPath
}
