package loader

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/luahost/config"
	"github.com/wippyai/luahost/errors"
)

const (
	// ScriptExt is appended to plain-file module paths.
	ScriptExt = ".lua"
	// AssetExt is appended to bundle asset names.
	AssetExt = ".bytes"
)

// ErrBundleMissing is the cause attached to loads made while bundle mode is
// active without a bundle container.
var ErrBundleMissing = errors.Configuration(errors.PhaseLoad, "script bundle not loaded", nil)

// Module is resolved module content. It is never cached.
type Module struct {
	Name   string
	Path   string
	Source []byte
}

// Loader resolves a module name to its content.
type Loader interface {
	Load(name string) (*Module, error)
}

// TranslatePath strips a trailing ".lua", converts dots to slashes and appends ext.
func TranslatePath(name, ext string) string {
	if strings.HasSuffix(strings.ToLower(name), ScriptExt) {
		name = name[:len(name)-len(ScriptExt)]
	}
	return strings.ReplaceAll(name, ".", "/") + ext
}

// FileLoader loads modules from a directory tree.
type FileLoader struct {
	Root string
	log  *zap.Logger
}

// NewFileLoader creates a loader rooted at root.
func NewFileLoader(root string, log *zap.Logger) *FileLoader {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileLoader{Root: root, log: log}
}

// Path returns the file a module name maps to.
func (l *FileLoader) Path(name string) string {
	return filepath.Join(l.Root, filepath.FromSlash(TranslatePath(name, ScriptExt)))
}

// Load reads the module file.
func (l *FileLoader) Load(name string) (*Module, error) {
	path := l.Path(name)
	l.log.Debug("load module from file", zap.String("module", name), zap.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.NotFound(errors.PhaseLoad, "module", name)
		}
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Name(name).
			Detail("cannot read %s", path).
			Cause(err).
			Build()
	}
	return &Module{Name: name, Path: path, Source: data}, nil
}

// BundleLoader loads modules from assets inside a Bundle.
type BundleLoader struct {
	bundle Bundle
	prefix string
	log    *zap.Logger
}

// NewBundleLoader creates a loader reading prefix + translated path from b.
// b may be nil; loads then fail with ErrBundleMissing.
func NewBundleLoader(b Bundle, prefix string, log *zap.Logger) *BundleLoader {
	if log == nil {
		log = zap.NewNop()
	}
	if b == nil {
		log.Error("script bundle not loaded; no module can be resolved", zap.String("prefix", prefix))
	}
	return &BundleLoader{bundle: b, prefix: prefix, log: log}
}

// AssetName returns the bundle entry a module name maps to.
func (l *BundleLoader) AssetName(name string) string {
	return l.prefix + TranslatePath(name, AssetExt)
}

// Load reads the module's asset from the bundle.
func (l *BundleLoader) Load(name string) (*Module, error) {
	asset := l.AssetName(name)
	l.log.Debug("load module from bundle", zap.String("module", name), zap.String("asset", asset))

	if l.bundle == nil {
		l.log.Error("script bundle not loaded", zap.String("module", name))
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Name(name).
			Detail("module not found").
			Cause(ErrBundleMissing).
			Build()
	}

	data, ok, err := l.bundle.Asset(asset)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Name(name).
			Detail("cannot read asset %s", asset).
			Cause(err).
			Build()
	}
	if !ok {
		return nil, errors.NotFound(errors.PhaseLoad, "module", name)
	}
	return &Module{Name: name, Path: asset, Source: data}, nil
}

// New selects the strategy configured by cfg. bundle is only consulted in
// bundle mode.
func New(cfg config.Config, bundle Bundle, log *zap.Logger) Loader {
	if cfg.UseBundle {
		return NewBundleLoader(bundle, cfg.BundlePrefix, log)
	}
	return NewFileLoader(cfg.LuaRoot(), log)
}
