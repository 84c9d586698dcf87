package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Env      string `mapstructure:"env"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

type MongoConfig struct {
	URI                     string `mapstructure:"uri"`
	Database                string `mapstructure:"database"`
	UsersCollection         string `mapstructure:"users_collection"`
	ConversationsCollection string `mapstructure:"conversations_collection"`
	MessagesCollection      string `mapstructure:"messages_collection"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	EventsTopic string   `mapstructure:"events_topic"`
	GroupID     string   `mapstructure:"group_id"`
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`
	TTLMinutes int    `mapstructure:"ttl_minutes"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

type Config struct {
	App   AppConfig   `mapstructure:"app"`
	Mongo MongoConfig `mapstructure:"mongodb"`
	Redis RedisConfig `mapstructure:"redis"`
	Kafka KafkaConfig `mapstructure:"kafka"`
	JWT   JWTConfig   `mapstructure:"jwt"`
	S3    S3Config    `mapstructure:"s3"`

	// derived
	RequestTimeout time.Duration
	TokenTTL       time.Duration
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}

	// sensible defaults
	if c.App.Port == 0 {
		c.App.Port = 8080
	}
	if c.Mongo.URI == "" {
		c.Mongo.URI = "mongodb://localhost:27017"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "messenger"
	}
	if c.Mongo.UsersCollection == "" {
		c.Mongo.UsersCollection = "users"
	}
	if c.Mongo.ConversationsCollection == "" {
		c.Mongo.ConversationsCollection = "conversations"
	}
	if c.Mongo.MessagesCollection == "" {
		c.Mongo.MessagesCollection = "messages"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "msgr"
	}
	if c.Kafka.EventsTopic == "" {
		c.Kafka.EventsTopic = "message.events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "messenger-archiver"
	}
	if c.JWT.TTLMinutes == 0 {
		c.JWT.TTLMinutes = 24 * 60
	}
	c.RequestTimeout = 10 * time.Second
	c.TokenTTL = time.Duration(c.JWT.TTLMinutes) * time.Minute
	return &c, nil
}
