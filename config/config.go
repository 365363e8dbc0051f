// Package config handles luahost.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/wippyai/luahost/errors"
)

// DefaultFileName is the configuration file looked up by FindAndLoad.
const DefaultFileName = "luahost.toml"

// Config is the runtime host configuration.
type Config struct {
	// UseBundle selects the packaged-bundle loader instead of plain files.
	UseBundle bool `toml:"use_bundle"`
	// UsePersistentPath loads plain-file modules from PersistentDataPath.
	UsePersistentPath bool `toml:"use_persistent_path"`
	// VerifyScripts requires a detached signature for every plain-file module.
	VerifyScripts bool `toml:"verify_scripts"`

	ScriptRoot         string `toml:"script_root" validate:"required"`
	PersistentDataPath string `toml:"persistent_data_path" validate:"required_if=UsePersistentPath true"`
	BundlePath         string `toml:"bundle_path" validate:"required_if=UseBundle true"`
	BundlePrefix       string `toml:"bundle_prefix"`

	// PublicKey enables hot-patch verification. Empty disables hot-patching.
	PublicKey  string `toml:"public_key" validate:"required_if=VerifyScripts true"`
	HotfixPath string `toml:"hotfix_path" validate:"required"`

	GCInterval   Duration `toml:"gc_interval" validate:"gt=0"`
	GCStepBudget int      `toml:"gc_step_budget" validate:"min=1"`

	InitModule      string `toml:"init_module"`
	InitFunction    string `toml:"init_function"`
	StartupFunction string `toml:"startup_function"`
	HotfixEnable    string `toml:"hotfix_enable" validate:"required"`
	HotfixDisable   string `toml:"hotfix_disable" validate:"required"`
	ConfigPrefix    string `toml:"config_prefix"`

	LogLevel string `toml:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// Dir is the directory containing the config file (set at load time).
	Dir string `toml:"-"`
}

// Duration is a time.Duration that decodes from TOML strings such as "1s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		ScriptRoot:         "scripts",
		PersistentDataPath: "data",
		BundlePrefix:       "Assets/BuildRes/GameTexts/Lua/",
		HotfixPath:         "GameData/Lua/hotfix.bytes",
		GCInterval:         Duration(time.Second),
		GCStepBudget:       64,
		InitModule:         "LuaInit",
		InitFunction:       "Init",
		StartupFunction:    "Startup",
		HotfixEnable:       "EnableHotFix",
		HotfixDisable:      "DisableHotFix",
		ConfigPrefix:       "luasettings/",
		LogLevel:           "info",
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Configuration(errors.PhaseConfig, "invalid configuration", err)
	}
	return nil
}

// Load parses a TOML file on top of Default and validates the result.
// Relative paths in the file are resolved against the file's directory.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Configuration(errors.PhaseConfig, fmt.Sprintf("cannot read %s", path), err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Configuration(errors.PhaseConfig, fmt.Sprintf("parse error in %s", path), err)
	}

	cfg.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return cfg, errors.Configuration(errors.PhaseConfig, fmt.Sprintf("cannot resolve path %s", path), err)
	}
	cfg.ScriptRoot = cfg.resolve(cfg.ScriptRoot)
	cfg.PersistentDataPath = cfg.resolve(cfg.PersistentDataPath)
	cfg.BundlePath = cfg.resolve(cfg.BundlePath)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FindAndLoad walks up from startDir to find a luahost.toml file.
// Returns Default() and no error if none is found.
func FindAndLoad(startDir string) (Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return Default(), err
	}

	for {
		path := filepath.Join(dir, DefaultFileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// LuaRoot returns the base directory for plain-file modules.
func (c *Config) LuaRoot() string {
	if c.UsePersistentPath {
		return c.PersistentDataPath
	}
	return c.ScriptRoot
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}
