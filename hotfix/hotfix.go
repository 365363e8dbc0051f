// Package hotfix verifies signed script patches before they are allowed to run.
//
// A patch is a script file plus a detached signature stored next to it with a
// ".sig" suffix, both produced by the release pipeline. The public key is
// either PEM (PKIX RSA or Ed25519, or PKCS#1 RSA) or base64 (DER, or a raw
// 32-byte Ed25519 key). RSA signatures are PKCS#1 v1.5 over SHA-256; Ed25519
// signs the raw bytes.
//
// An empty key disables hot-patching altogether.
package hotfix

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wippyai/luahost/errors"
)

// SignatureSuffix is appended to a patch path to find its signature.
const SignatureSuffix = ".sig"

// State is the patch lifecycle state.
type State uint8

const (
	Unverified State = iota
	Verified
	Rejected
	Active
)

func (s State) String() string {
	switch s {
	case Unverified:
		return "unverified"
	case Verified:
		return "verified"
	case Rejected:
		return "rejected"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

var (
	errDisabled     = stderrors.New("hot-patching disabled: no public key")
	errNoSignature  = stderrors.New("empty signature")
	errBadSignature = stderrors.New("signature does not match")
)

// ParsePublicKey decodes a PEM or base64 encoded RSA or Ed25519 public key.
func ParsePublicKey(s string) (crypto.PublicKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.InvalidInput(errors.PhaseVerify, "empty public key")
	}

	var der []byte
	if block, _ := pem.Decode([]byte(s)); block != nil {
		if block.Type == "RSA PUBLIC KEY" {
			key, err := x509.ParsePKCS1PublicKey(block.Bytes)
			if err != nil {
				return nil, errors.Wrap(errors.PhaseVerify, errors.KindInvalidInput, err, "parse PKCS#1 public key")
			}
			return key, nil
		}
		der = block.Bytes
	} else {
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseVerify, errors.KindInvalidInput, err, "public key is neither PEM nor base64")
		}
		if len(raw) == ed25519.PublicKeySize {
			return ed25519.PublicKey(raw), nil
		}
		der = raw
	}

	if key, err := x509.ParsePKIXPublicKey(der); err == nil {
		return checkKeyType(key)
	}
	key, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseVerify, errors.KindInvalidInput, err, "parse public key")
	}
	return key, nil
}

func checkKeyType(key crypto.PublicKey) (crypto.PublicKey, error) {
	switch key.(type) {
	case *rsa.PublicKey, ed25519.PublicKey:
		return key, nil
	default:
		return nil, errors.InvalidInput(errors.PhaseVerify, fmt.Sprintf("unsupported public key type %T", key))
	}
}

// Verifier checks detached signatures against one public key.
type Verifier struct {
	key crypto.PublicKey
}

// NewVerifier parses publicKey. An empty key yields a disabled verifier.
func NewVerifier(publicKey string) (*Verifier, error) {
	if strings.TrimSpace(publicKey) == "" {
		return &Verifier{}, nil
	}
	key, err := ParsePublicKey(publicKey)
	if err != nil {
		return nil, err
	}
	return &Verifier{key: key}, nil
}

// NewVerifierFromKey wraps an already parsed key.
func NewVerifierFromKey(key crypto.PublicKey) (*Verifier, error) {
	if _, err := checkKeyType(key); err != nil {
		return nil, err
	}
	return &Verifier{key: key}, nil
}

// Enabled reports whether a public key is configured.
func (v *Verifier) Enabled() bool {
	return v != nil && v.key != nil
}

// Verify returns Verified only if sig is a valid signature of data. Any other
// outcome is Rejected with the reason attached.
func (v *Verifier) Verify(name string, data, sig []byte) (State, error) {
	if !v.Enabled() {
		return Rejected, errors.Verification(name, errDisabled)
	}
	if len(sig) == 0 {
		return Rejected, errors.Verification(name, errNoSignature)
	}

	switch key := v.key.(type) {
	case ed25519.PublicKey:
		if !ed25519.Verify(key, data, sig) {
			return Rejected, errors.Verification(name, errBadSignature)
		}
	case *rsa.PublicKey:
		digest := sha256.Sum256(data)
		if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig); err != nil {
			return Rejected, errors.Verification(name, err)
		}
	default:
		return Rejected, errors.Verification(name, fmt.Errorf("unsupported key type %T", key))
	}
	return Verified, nil
}

// Patch is a hot-patch blob with its detached signature.
type Patch struct {
	Path      string
	Source    []byte
	Signature []byte
	state     State
}

// Load reads relPath and its signature under dataDir. It returns (nil, nil)
// when no patch file exists. A missing signature leaves Signature empty so
// verification rejects the patch.
func Load(dataDir, relPath string) (*Patch, error) {
	path := filepath.Join(dataDir, filepath.FromSlash(relPath))
	src, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.New(errors.PhaseVerify, errors.KindInvalidInput).
			Name(path).
			Detail("cannot read patch").
			Cause(err).
			Build()
	}

	sig, err := os.ReadFile(path + SignatureSuffix)
	if err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return nil, errors.New(errors.PhaseVerify, errors.KindInvalidInput).
			Name(path + SignatureSuffix).
			Detail("cannot read signature").
			Cause(err).
			Build()
	}
	return &Patch{Path: path, Source: src, Signature: sig}, nil
}

// State returns the current lifecycle state.
func (p *Patch) State() State {
	return p.state
}

// Verify moves an unverified patch to Verified or Rejected. Rejected patches
// drop their source so it can never be executed.
func (p *Patch) Verify(v *Verifier) (State, error) {
	if p.state != Unverified {
		return p.state, errors.InvalidInput(errors.PhaseVerify, fmt.Sprintf("patch already %s", p.state))
	}
	state, err := v.Verify(p.Path, p.Source, p.Signature)
	p.state = state
	if state == Rejected {
		p.Source = nil
	}
	return state, err
}

// Runnable returns the patch source only once it is verified.
func (p *Patch) Runnable() ([]byte, bool) {
	if p.state != Verified && p.state != Active {
		return nil, false
	}
	return p.Source, true
}

// Activate marks a verified patch as running.
func (p *Patch) Activate() error {
	if p.state != Verified {
		return errors.InvalidInput(errors.PhaseVerify, fmt.Sprintf("cannot activate %s patch", p.state))
	}
	p.state = Active
	return nil
}
