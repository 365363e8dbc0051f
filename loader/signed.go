package loader

import (
	stderrors "errors"
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/luahost/errors"
	"github.com/wippyai/luahost/hotfix"
)

// SignatureSource is implemented by loaders that can fetch the detached
// signature stored next to a module they resolved.
type SignatureSource interface {
	Signature(m *Module) ([]byte, error)
}

// Signature reads <path>.sig next to the module file. A missing file yields
// an empty signature.
func (l *FileLoader) Signature(m *Module) ([]byte, error) {
	data, err := os.ReadFile(m.Path + hotfix.SignatureSuffix)
	if err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return data, nil
}

// Signature reads the <asset>.sig entry from the bundle.
func (l *BundleLoader) Signature(m *Module) ([]byte, error) {
	if l.bundle == nil {
		return nil, ErrBundleMissing
	}
	data, _, err := l.bundle.Asset(m.Path + hotfix.SignatureSuffix)
	return data, err
}

// SignedLoader only hands out modules whose signature verifies.
type SignedLoader struct {
	inner    Loader
	verifier *hotfix.Verifier
	log      *zap.Logger
}

// NewSignedLoader wraps inner. inner must implement SignatureSource.
func NewSignedLoader(inner Loader, v *hotfix.Verifier, log *zap.Logger) (*SignedLoader, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if _, ok := inner.(SignatureSource); !ok {
		return nil, errors.Configuration(errors.PhaseLoad, "loader cannot provide signatures", nil)
	}
	if !v.Enabled() {
		return nil, errors.Configuration(errors.PhaseLoad, "script verification requires a public key", nil)
	}
	return &SignedLoader{inner: inner, verifier: v, log: log}, nil
}

// Load resolves the module and verifies it before returning it.
func (l *SignedLoader) Load(name string) (*Module, error) {
	m, err := l.inner.Load(name)
	if err != nil {
		return nil, err
	}

	sig, err := l.inner.(SignatureSource).Signature(m)
	if err != nil {
		return nil, errors.Verification(name, err)
	}
	if _, err := l.verifier.Verify(name, m.Source, sig); err != nil {
		l.log.Error("module signature rejected", zap.String("module", name), zap.String("path", m.Path), zap.Error(err))
		return nil, err
	}
	return m, nil
}
