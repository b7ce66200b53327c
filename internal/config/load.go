package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/errors"
)

// newViperInstance creates a new Viper instance with standard FORGE configuration.
// This includes environment variable prefix (FORGE_), key replacer, and defaults.
func newViperInstance() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("FORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults applies built-in defaults to the viper instance.
func setDefaults(v *viper.Viper) {
	host, _ := os.Hostname()
	v.SetDefault("agent_name", host)
	v.SetDefault("verbose", false)
	v.SetDefault("work_dir", defaultWorkDir())
	v.SetDefault("proxy.url", "")
}

// defaultWorkDir returns ~/.forge, falling back to the working directory
// when the home directory cannot be determined.
func defaultWorkDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return constants.ForgeHome
	}
	return filepath.Join(home, constants.ForgeHome)
}

// isConfigNotFoundError returns true if the error is a viper config file not found error.
func isConfigNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var configNotFoundErr viper.ConfigFileNotFoundError
	return stderrors.As(err, &configNotFoundErr)
}

// Load reads agent settings from all available sources with proper precedence.
// A missing config file is not an error; defaults plus environment apply.
// If path is non-empty, it names the config file explicitly and a read
// failure other than "not found" is fatal.
func Load(path string) (*Settings, error) {
	v := newViperInstance()

	if path == "" {
		path = filepath.Join(defaultWorkDir(), "config.yaml")
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) {
			return nil, errors.Wrap(err, "failed to read agent config file")
		}
	}

	var s Settings
	if err := v.Unmarshal(&s, viperDecoderOption()); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal agent settings")
	}
	if err := Validate(&s); err != nil {
		return nil, errors.Wrap(err, "invalid agent settings")
	}
	return &s, nil
}

// viperDecoderOption returns the decoder options for Viper unmarshal.
// Includes duration parsing for any future duration-typed settings.
func viperDecoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	)
}
