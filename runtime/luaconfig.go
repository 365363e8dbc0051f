package runtime

import (
	"os"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/luahost/errors"
	"github.com/wippyai/luahost/vm"
)

// LoadConfigModule runs the settings module config_prefix+name and returns the
// table it returns as Go values. Settings scripts run in a throwaway
// environment, so globals they assign stay out of the shared one.
func (r *Runtime) LoadConfigModule(name string) (any, error) {
	if err := r.checkOpen(errors.PhaseConfig); err != nil {
		return nil, err
	}
	full := r.cfg.ConfigPrefix + name
	m, err := r.loader.Load(full)
	if err != nil {
		return nil, err
	}
	return r.loadConfig(m.Source, m.Path)
}

// LoadConfigFile runs a settings script from disk.
func (r *Runtime) LoadConfigFile(path string) (any, error) {
	if err := r.checkOpen(errors.PhaseConfig); err != nil {
		return nil, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(errors.PhaseConfig, "config file", path)
		}
		return nil, errors.Configuration(errors.PhaseConfig, "cannot read "+path, err)
	}
	return r.loadConfig(src, path)
}

// LoadConfigString runs a settings chunk.
func (r *Runtime) LoadConfigString(src string) (any, error) {
	if err := r.checkOpen(errors.PhaseConfig); err != nil {
		return nil, err
	}
	return r.loadConfig([]byte(src), "config")
}

func (r *Runtime) loadConfig(src []byte, chunkName string) (any, error) {
	env, err := vm.NewEnvironment(r.state, r.state.Global(), nil)
	if err != nil {
		return nil, err
	}
	defer env.Dispose()

	results, err := r.state.Exec(src, chunkName, env)
	if err != nil {
		r.log.Error("settings script failed", zap.String("chunk", chunkName), zap.Error(err))
		return nil, errors.Configuration(errors.PhaseConfig, "settings script "+chunkName, err)
	}
	if len(results) == 0 || results[0] == lua.LNil {
		return nil, errors.Configuration(errors.PhaseConfig, "settings script "+chunkName+" returned nothing", nil)
	}
	return vm.ToGo(results[0]), nil
}
