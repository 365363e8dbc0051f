package hotfix

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/luahost/errors"
)

var patchSource = []byte(`function EnableHotFix() end function DisableHotFix() end`)

func ed25519Key(t *testing.T) (string, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(pub), priv
}

func rsaKey(t *testing.T) (string, *rsa.PrivateKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), priv
}

func rsaSign(t *testing.T, priv *rsa.PrivateKey, data []byte) []byte {
	t.Helper()
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	require.NoError(t, err)
	return sig
}

func TestParsePublicKey(t *testing.T) {
	edPub, _ := ed25519Key(t)
	rsaPEM, rsaPriv := rsaKey(t)
	pkcs1 := string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(&rsaPriv.PublicKey),
	}))
	der, err := x509.MarshalPKIXPublicKey(&rsaPriv.PublicKey)
	require.NoError(t, err)

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"raw ed25519 base64", edPub, false},
		{"pkix pem", rsaPEM, false},
		{"pkcs1 pem", pkcs1, false},
		{"pkix base64", base64.StdEncoding.EncodeToString(der), false},
		{"empty", "  ", true},
		{"garbage", "not a key!", true},
		{"short base64", base64.StdEncoding.EncodeToString([]byte("abc")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParsePublicKey(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, key)
		})
	}
}

func TestVerifier_Disabled(t *testing.T) {
	v, err := NewVerifier("")
	require.NoError(t, err)
	assert.False(t, v.Enabled())

	state, err := v.Verify("p", patchSource, []byte("sig"))
	assert.Equal(t, Rejected, state)
	assert.ErrorIs(t, err, errors.ErrVerification)
}

func TestVerifier_Ed25519(t *testing.T) {
	pub, priv := ed25519Key(t)
	v, err := NewVerifier(pub)
	require.NoError(t, err)
	require.True(t, v.Enabled())

	sig := ed25519.Sign(priv, patchSource)
	state, err := v.Verify("p", patchSource, sig)
	require.NoError(t, err)
	assert.Equal(t, Verified, state)

	// Every single-byte tamper of the signature is rejected.
	for i := range sig {
		bad := append([]byte(nil), sig...)
		bad[i] ^= 0x01
		state, err := v.Verify("p", patchSource, bad)
		assert.Equal(t, Rejected, state, "byte %d", i)
		assert.ErrorIs(t, err, errors.ErrVerification)
	}

	tampered := append([]byte(nil), patchSource...)
	tampered[0] ^= 0xff
	state, _ = v.Verify("p", tampered, sig)
	assert.Equal(t, Rejected, state)

	state, _ = v.Verify("p", patchSource, nil)
	assert.Equal(t, Rejected, state)
}

func TestVerifier_RSA(t *testing.T) {
	pub, priv := rsaKey(t)
	v, err := NewVerifier(pub)
	require.NoError(t, err)

	sig := rsaSign(t, priv, patchSource)
	state, err := v.Verify("p", patchSource, sig)
	require.NoError(t, err)
	assert.Equal(t, Verified, state)

	sig[len(sig)/2] ^= 0x80
	state, err = v.Verify("p", patchSource, sig)
	assert.Equal(t, Rejected, state)
	assert.ErrorIs(t, err, errors.ErrVerification)
}

func writePatch(t *testing.T, dir string, src, sig []byte) {
	t.Helper()
	path := filepath.Join(dir, "GameData", "Lua", "hotfix.bytes")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, src, 0o644))
	if sig != nil {
		require.NoError(t, os.WriteFile(path+SignatureSuffix, sig, 0o644))
	}
}

func TestPatch_Lifecycle(t *testing.T) {
	pub, priv := ed25519Key(t)
	v, err := NewVerifier(pub)
	require.NoError(t, err)

	dir := t.TempDir()
	writePatch(t, dir, patchSource, ed25519.Sign(priv, patchSource))

	p, err := Load(dir, "GameData/Lua/hotfix.bytes")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, Unverified, p.State())

	_, ok := p.Runnable()
	assert.False(t, ok, "unverified patch must not be runnable")
	assert.Error(t, p.Activate())

	state, err := p.Verify(v)
	require.NoError(t, err)
	assert.Equal(t, Verified, state)

	src, ok := p.Runnable()
	require.True(t, ok)
	assert.Equal(t, patchSource, src)

	require.NoError(t, p.Activate())
	assert.Equal(t, Active, p.State())

	_, err = p.Verify(v)
	assert.Error(t, err)
	assert.Equal(t, Active, p.State())
}

func TestPatch_Rejected(t *testing.T) {
	pub, priv := ed25519Key(t)
	v, err := NewVerifier(pub)
	require.NoError(t, err)

	sig := ed25519.Sign(priv, patchSource)
	sig[0] ^= 0x01

	dir := t.TempDir()
	writePatch(t, dir, patchSource, sig)

	p, err := Load(dir, "GameData/Lua/hotfix.bytes")
	require.NoError(t, err)

	state, err := p.Verify(v)
	assert.Equal(t, Rejected, state)
	assert.ErrorIs(t, err, errors.ErrVerification)

	_, ok := p.Runnable()
	assert.False(t, ok)
	assert.Nil(t, p.Source)
	assert.Error(t, p.Activate())
}

func TestLoad_Missing(t *testing.T) {
	p, err := Load(t.TempDir(), "GameData/Lua/hotfix.bytes")
	assert.NoError(t, err)
	assert.Nil(t, p)

	dir := t.TempDir()
	writePatch(t, dir, patchSource, nil)
	p, err = Load(dir, "GameData/Lua/hotfix.bytes")
	require.NoError(t, err)
	assert.Empty(t, p.Signature)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unverified", Unverified.String())
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "state(9)", State(9).String())
}
