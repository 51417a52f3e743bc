package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"go.uber.org/fx"

	"github.com/kgforge/kgforge/pkg/kgforge/support/util/exception"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/logger"
)

// Package config provides utilities for loading and managing application
// configuration from YAML files and environment variables.

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	EnvFilePath    string `name:"envFilePath" optional:"true"`
}

// loadConfig loads configuration from the embedded YAML and environment
// variables. It is intended to be called once during application startup.
func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else {
		if err := godotenv.Load(); err != nil {
			logger.Debugf(".env file not found or could not be loaded: %v", err)
		}
	}

	cfg := NewConfig()

	// Defaults come from NewConfig(); YAML values are parsed into a temporary
	// Config and merged over them.
	var yamlConfig Config
	if err := yaml.Unmarshal(embeddedConfig, &yamlConfig); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to unmarshal embedded config", err, false, false)
	}

	mergeConfig(cfg, &yamlConfig)

	// Environment variables override the merged configuration. Variable names
	// follow the yaml tag path, e.g. KGFORGE_GRAPH_URI.
	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load config from environment variables", err, false, false)
	}

	applyWellKnownEnv(cfg)
	return cfg, nil
}

// applyWellKnownEnv honors the conventional variable names of the external
// services (OPENAI_API_KEY, NEO4J_*) in addition to the KGFORGE_* scheme.
func applyWellKnownEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Kgforge.JobAPI.APIKey = v
	}
	if v := os.Getenv("NEO4J_URI"); v != "" {
		cfg.Kgforge.Graph.URI = v
	}
	if v := os.Getenv("NEO4J_USERNAME"); v != "" {
		cfg.Kgforge.Graph.Username = v
	}
	if v := os.Getenv("NEO4J_PASSWORD"); v != "" {
		cfg.Kgforge.Graph.Password = v
	}
}

// NewConfigProvider is an Fx provider that loads and provides *Config.
// It also sets the global logger level.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := loadConfig(params.EnvFilePath, params.EmbeddedConfig)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load configuration", err, false, false)
	}

	logger.SetLogLevel(cfg.Kgforge.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Kgforge.System.Logging.Level)

	return cfg, nil
}

// LoadConfig loads configuration from the embedded YAML and environment
// variables. Exposed for callers outside the fx graph (tests, tooling).
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, embeddedConfig)
}

// mergeConfig performs a deep merge from sourceConfig into destConfig.
// Non-zero values in sourceConfig overwrite the corresponding defaults.
func mergeConfig(destConfig, sourceConfig *Config) {
	mergeKgforgeConfig(&destConfig.Kgforge, &sourceConfig.Kgforge)
}

func mergeKgforgeConfig(dest, source *KgforgeConfig) {
	mergeSystemConfig(&dest.System, &source.System)

	if source.Pipeline.Task != "" {
		dest.Pipeline.Task = source.Pipeline.Task
	}
	if source.Pipeline.BatchSize != 0 {
		dest.Pipeline.BatchSize = source.Pipeline.BatchSize
	}
	mergeRetryConfig(&dest.Pipeline.Poll, &source.Pipeline.Poll)

	if source.JobAPI.BaseURL != "" {
		dest.JobAPI.BaseURL = source.JobAPI.BaseURL
	}
	if source.JobAPI.APIKey != "" {
		dest.JobAPI.APIKey = source.JobAPI.APIKey
	}
	if source.JobAPI.Model != "" {
		dest.JobAPI.Model = source.JobAPI.Model
	}
	if source.JobAPI.Endpoint != "" {
		dest.JobAPI.Endpoint = source.JobAPI.Endpoint
	}
	if source.JobAPI.CompletionWindow != "" {
		dest.JobAPI.CompletionWindow = source.JobAPI.CompletionWindow
	}
	if source.JobAPI.TimeoutSeconds != 0 {
		dest.JobAPI.TimeoutSeconds = source.JobAPI.TimeoutSeconds
	}

	if source.Manifest.Backend != "" {
		dest.Manifest.Backend = source.Manifest.Backend
	}
	if source.Manifest.BatchDir != "" {
		dest.Manifest.BatchDir = source.Manifest.BatchDir
	}
	if source.Manifest.DBRef != "" {
		dest.Manifest.DBRef = source.Manifest.DBRef
	}

	if source.Graph.URI != "" {
		dest.Graph.URI = source.Graph.URI
	}
	if source.Graph.Username != "" {
		dest.Graph.Username = source.Graph.Username
	}
	if source.Graph.Password != "" {
		dest.Graph.Password = source.Graph.Password
	}
	if source.Graph.Database != "" {
		dest.Graph.Database = source.Graph.Database
	}

	if source.Export.Enabled {
		dest.Export.Enabled = true
	}
	if source.Export.Path != "" {
		dest.Export.Path = source.Export.Path
	}
	if source.Export.CompressionCodec != "" {
		dest.Export.CompressionCodec = source.Export.CompressionCodec
	}

	if source.AdaptorConfigs != nil {
		if dest.AdaptorConfigs == nil {
			dest.AdaptorConfigs = make(map[string]interface{})
		}
		for key, value := range source.AdaptorConfigs {
			dest.AdaptorConfigs[key] = value
		}
	}
}

func mergeRetryConfig(dest, source *RetryConfig) {
	if source.MaxAttempts != 0 {
		dest.MaxAttempts = source.MaxAttempts
	}
	if source.InitialInterval != 0 {
		dest.InitialInterval = source.InitialInterval
	}
	if source.MaxInterval != 0 {
		dest.MaxInterval = source.MaxInterval
	}
	if source.Factor != 0 {
		dest.Factor = source.Factor
	}
}

func mergeSystemConfig(dest, source *SystemConfig) {
	if source.Timezone != "" {
		dest.Timezone = source.Timezone
	}
	if source.Logging.Level != "" {
		dest.Logging.Level = source.Logging.Level
	}
}

// loadStructFromEnv recursively loads configuration values into a struct from
// environment variables, using the "yaml" tag to build the variable name.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}

		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// setField sets the value of a reflect.Value field based on its kind.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	}
	return nil
}
