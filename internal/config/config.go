// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Upload        UploadConfig        `mapstructure:"upload"`
	Chat          ChatConfig          `mapstructure:"chat"`
	Tools         []ToolConfig        `mapstructure:"tools"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// LLMConfig 存储大语言模型相关的配置（OpenAI 兼容接口，如 Groq）。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	TimeoutSec int                 `mapstructure:"timeout_sec"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关的默认参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// UploadConfig 存储上下文文件上传的限制。
type UploadConfig struct {
	MaxSizeMB    int64    `mapstructure:"max_size_mb"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

// ChatConfig 存储会话相关的限制。
type ChatConfig struct {
	// HistoryWindow 是发送给模型的最近消息条数（完整历史仍然落库）。
	HistoryWindow int `mapstructure:"history_window"`
	// MessageMaxLength 是单条用户消息允许的最大字符数。
	MessageMaxLength int `mapstructure:"message_max_length"`
}

// ToolConfig 描述一个工具标签页：提示词、可用模型与会话策略。
type ToolConfig struct {
	// Key 是 URL 中使用的标识符，例如 "study-plan"。
	Key string `mapstructure:"key"`
	// TabName 是落库到 chat_sessions.tab_name 的显示名，例如 "Study Plan"。
	TabName string `mapstructure:"tab_name"`
	// SystemPrompt 是该工具的固定系统提示词。
	SystemPrompt string `mapstructure:"system_prompt"`
	// DefaultModel 与 Models 限定该工具可用的模型。
	DefaultModel string   `mapstructure:"default_model"`
	Models       []string `mapstructure:"models"`
	// DefaultTemperature 是生成动作的默认温度。
	DefaultTemperature float64 `mapstructure:"default_temperature"`
	// NewSessionOnGenerate 为 true 时，每次生成动作都会强制开启新会话。
	NewSessionOnGenerate bool `mapstructure:"new_session_on_generate"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}

// ToolByKey 根据 URL key 查找工具配置。
func (c *Config) ToolByKey(key string) (*ToolConfig, bool) {
	for i := range c.Tools {
		if c.Tools[i].Key == key {
			return &c.Tools[i], true
		}
	}
	return nil, false
}

// ToolByTabName 根据落库的 tab_name 查找工具配置。
func (c *Config) ToolByTabName(tabName string) (*ToolConfig, bool) {
	for i := range c.Tools {
		if c.Tools[i].TabName == tabName {
			return &c.Tools[i], true
		}
	}
	return nil, false
}
