// Package config resolves settings from defaults, a config file, LOG2JSON_* environment
// variables and command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"log2json/internal/convert"
	"log2json/internal/logging"
	"log2json/pkg/kvline"
)

const (
	KeyOnError       = "on_error"
	KeyLenientSpaces = "lenient_spaces"
	KeyDuplicates    = "duplicates"
	KeyLogFormat     = "log_format"
	KeyLogLevel      = "log_level"
	KeyReport        = "report"

	EnvPrefix = "LOG2JSON"

	// ConfigName is looked up as .log2json.toml in the working and home directory.
	ConfigName = ".log2json"
)

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"on-error":       KeyOnError,
	"lenient-spaces": KeyLenientSpaces,
	"duplicates":     KeyDuplicates,
	"log-format":     KeyLogFormat,
	"log-level":      KeyLogLevel,
	"report":         KeyReport,
}

// Settings is the validated configuration.
type Settings struct {
	Policy    convert.Policy
	Parser    kvline.Options
	LogFormat string
	LogLevel  string
	Report    string // path of the run report, empty for none
}

// RegisterFlags adds the flags for every config key to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("on-error", string(convert.PolicyCollect), "What to do with lines that fail to parse: skip, abort or collect")
	fs.Bool("lenient-spaces", false, "Accept more than one space between pairs")
	fs.String("duplicates", "keep", "Duplicate keys in a line: keep (all, in order) or last (later value wins)")
	fs.String("log-format", logging.FormatAuto, "Diagnostics format on stderr: auto, text or json")
	fs.String("log-level", "info", "Diagnostics level: debug, info, warn or error")
	fs.String("report", "", "Write a run report to this file (.html renders HTML, anything else Markdown)")
}

// New returns a viper instance with defaults, the config file and environment bound. If
// configFile is empty, .log2json.toml is searched in the working and home directory and may
// be missing.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault(KeyOnError, string(convert.PolicyCollect))
	v.SetDefault(KeyLenientSpaces, false)
	v.SetDefault(KeyDuplicates, "keep")
	v.SetDefault(KeyLogFormat, logging.FormatAuto)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyReport, "")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v, nil
}

// BindFlags makes explicitly set flags override every other source.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("binding flag %q: %w", name, err)
		}
	}
	return nil
}

// Load validates the resolved values.
func Load(v *viper.Viper) (*Settings, error) {
	policy, err := convert.ParsePolicy(v.GetString(KeyOnError))
	if err != nil {
		return nil, err
	}

	var dup kvline.DuplicatePolicy
	switch strings.ToLower(v.GetString(KeyDuplicates)) {
	case "keep", "all":
		dup = kvline.KeepAll
	case "last":
		dup = kvline.LastWins
	default:
		return nil, fmt.Errorf("unknown duplicates mode %q (valid: keep, last)", v.GetString(KeyDuplicates))
	}

	s := &Settings{
		Policy: policy,
		Parser: kvline.Options{
			LenientSpaces: v.GetBool(KeyLenientSpaces),
			Duplicates:    dup,
		},
		LogFormat: v.GetString(KeyLogFormat),
		LogLevel:  v.GetString(KeyLogLevel),
		Report:    v.GetString(KeyReport),
	}

	if _, err := logging.ParseLevel(s.LogLevel); err != nil {
		return nil, err
	}
	switch strings.ToLower(s.LogFormat) {
	case logging.FormatAuto, logging.FormatText, logging.FormatJSON:
	default:
		return nil, fmt.Errorf("unknown log format %q (valid: auto, text, json)", s.LogFormat)
	}
	return s, nil
}
