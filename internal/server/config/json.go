package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/zhangleigang/knowledge-api/internal/flagx"
	"github.com/zhangleigang/knowledge-api/internal/timex"
)

// JsonConfig is the JSON file layout. Durations accept "10s" style strings
// or integer nanoseconds.
type JsonConfig struct {
	Port              int            `json:"port"`
	GRPCAddr          string         `json:"grpc_addr"`
	JWTSecret         string         `json:"jwt_secret"`
	TokenTTL          timex.Duration `json:"token_ttl"`
	WechatAppID       string         `json:"wechat_appid"`
	WechatSecret      string         `json:"wechat_secret"`
	WechatEndpoint    string         `json:"wechat_endpoint"`
	WechatTimeout     timex.Duration `json:"wechat_timeout"`
	StoreBackend      string         `json:"store_backend"`
	UserDataFile      string         `json:"user_data_file"`
	DatabaseDSN       string         `json:"database_dsn"`
	RedisAddr         string         `json:"redis_addr"`
	RedisPassword     string         `json:"redis_password"`
	RedisDB           int            `json:"redis_db"`
	RedisPrefix       string         `json:"redis_prefix"`
	KnowledgeFile     string         `json:"knowledge_file"`
	KnowledgeS3Bucket string         `json:"knowledge_s3_bucket"`
	KnowledgeS3Key    string         `json:"knowledge_s3_key"`
	S3AccessKey       string         `json:"s3_access_key"`
	S3SecretKey       string         `json:"s3_secret_key"`
	S3Region          string         `json:"s3_region"`
	S3BaseEndpoint    string         `json:"s3_endpoint"`
	LogBackend        string         `json:"log_backend"`
	LogFormat         string         `json:"log_format"`
	LogLevel          string         `json:"log_level"`
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// parseJson loads the file named by -c/-config in args, if any, and copies
// every non-zero value into config.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigPath(args)

	// nothing to load
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if c.Port != 0 {
		config.Port = c.Port
	}
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.JWTSecret, c.JWTSecret)
	if c.TokenTTL.Duration != 0 {
		config.TokenTTL = c.TokenTTL.Duration
	}
	setString(&config.WechatAppID, c.WechatAppID)
	setString(&config.WechatSecret, c.WechatSecret)
	setString(&config.WechatEndpoint, c.WechatEndpoint)
	if c.WechatTimeout.Duration != 0 {
		config.WechatTimeout = c.WechatTimeout.Duration
	}
	setString(&config.StoreBackend, c.StoreBackend)
	setString(&config.UserDataFile, c.UserDataFile)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	if c.RedisDB != 0 {
		config.RedisDB = c.RedisDB
	}
	setString(&config.RedisPrefix, c.RedisPrefix)
	setString(&config.KnowledgeFile, c.KnowledgeFile)
	setString(&config.KnowledgeS3Bucket, c.KnowledgeS3Bucket)
	setString(&config.KnowledgeS3Key, c.KnowledgeS3Key)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogBackend, c.LogBackend)
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.LogLevel, c.LogLevel)

	return nil
}
