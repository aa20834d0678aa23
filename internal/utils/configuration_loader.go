package utils

import (
	"bytes"
	"errors"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	environmentKeySeparatorConstant        = "_"
	configurationKeySeparatorConstant      = "."
	readEmbeddedConfigurationErrorConstant = "read embedded configuration: "
	mergeConfigurationFileErrorConstant    = "merge configuration file: "
	decodeConfigurationErrorConstant       = "decode configuration: "
)

// ConfigurationMetadata reports where the loaded configuration came from.
type ConfigurationMetadata struct {
	ConfigFileUsed string
}

// ConfigurationLoader resolves configuration from embedded defaults, discovered
// or explicit configuration files, and environment variables, in ascending
// precedence order.
type ConfigurationLoader struct {
	configurationName         string
	configurationType         string
	environmentPrefix         string
	searchPaths               []string
	embeddedConfiguration     []byte
	embeddedConfigurationType string
}

// NewConfigurationLoader constructs a ConfigurationLoader with the provided
// configuration file name, type, environment prefix, and search paths.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, searchPaths []string) *ConfigurationLoader {
	return &ConfigurationLoader{
		configurationName: configurationName,
		configurationType: configurationType,
		environmentPrefix: environmentPrefix,
		searchPaths:       append([]string{}, searchPaths...),
	}
}

// SetEmbeddedConfiguration registers baseline configuration content applied
// beneath file and environment values.
func (loader *ConfigurationLoader) SetEmbeddedConfiguration(embeddedConfiguration []byte, embeddedConfigurationType string) {
	loader.embeddedConfiguration = embeddedConfiguration
	loader.embeddedConfigurationType = embeddedConfigurationType
}

// LoadConfiguration resolves configuration values into the provided target
// structure. An explicit configuration file path bypasses the search paths.
func (loader *ConfigurationLoader) LoadConfiguration(explicitConfigurationFilePath string, defaultValues map[string]any, target any) (ConfigurationMetadata, error) {
	viperInstance := viper.New()

	for defaultKey, defaultValue := range defaultValues {
		viperInstance.SetDefault(defaultKey, defaultValue)
	}

	if len(loader.embeddedConfiguration) > 0 {
		viperInstance.SetConfigType(loader.embeddedConfigurationType)
		if readError := viperInstance.ReadConfig(bytes.NewReader(loader.embeddedConfiguration)); readError != nil {
			return ConfigurationMetadata{}, errors.New(readEmbeddedConfigurationErrorConstant + readError.Error())
		}
	}

	trimmedExplicitPath := strings.TrimSpace(explicitConfigurationFilePath)
	if len(trimmedExplicitPath) > 0 {
		viperInstance.SetConfigFile(trimmedExplicitPath)
		if mergeError := viperInstance.MergeInConfig(); mergeError != nil {
			return ConfigurationMetadata{}, errors.New(mergeConfigurationFileErrorConstant + mergeError.Error())
		}
	} else {
		viperInstance.SetConfigName(loader.configurationName)
		viperInstance.SetConfigType(loader.configurationType)
		for _, searchPath := range loader.searchPaths {
			viperInstance.AddConfigPath(searchPath)
		}
		if mergeError := viperInstance.MergeInConfig(); mergeError != nil {
			var configFileNotFoundError viper.ConfigFileNotFoundError
			if !errors.As(mergeError, &configFileNotFoundError) {
				return ConfigurationMetadata{}, errors.New(mergeConfigurationFileErrorConstant + mergeError.Error())
			}
		}
	}

	viperInstance.SetEnvPrefix(loader.environmentPrefix)
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(configurationKeySeparatorConstant, environmentKeySeparatorConstant))
	viperInstance.AutomaticEnv()

	weaklyTypedDecoding := func(decoderConfig *mapstructure.DecoderConfig) {
		decoderConfig.WeaklyTypedInput = true
	}
	if decodeError := viperInstance.Unmarshal(target, weaklyTypedDecoding); decodeError != nil {
		return ConfigurationMetadata{}, errors.New(decodeConfigurationErrorConstant + decodeError.Error())
	}

	return ConfigurationMetadata{ConfigFileUsed: viperInstance.ConfigFileUsed()}, nil
}
