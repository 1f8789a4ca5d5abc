package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCredentialFile(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "credential.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	return path
}

func TestCredential_Usable(t *testing.T) {
	var nilCred *Credential
	assert.False(t, nilCred.Usable())
	assert.False(t, (&Credential{}).Usable())
	assert.False(t, (&Credential{Token: "tok", Err: "RefreshAccessTokenError"}).Usable())
	assert.True(t, (&Credential{Token: "tok"}).Usable())
}

func TestFileProvider_Start_LoadsCredential(t *testing.T) {
	path := writeCredentialFile(t, t.TempDir(), `{"token":"abc123","expiry":"2030-01-01T00:00:00Z"}`)

	p := NewFileProvider(path)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	cred, err := p.Credential(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "abc123", cred.Token)
	assert.True(t, cred.Usable())
	assert.Equal(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), cred.Expiry)
}

func TestFileProvider_MissingFile_MeansSignedOut(t *testing.T) {
	p := NewFileProvider(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	cred, err := p.Credential(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestFileProvider_ForceRefresh_RereadsFile(t *testing.T) {
	dir := t.TempDir()
	path := writeCredentialFile(t, dir, `{"token":"stale"}`)

	p := NewFileProvider(path)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	// Identity agent rotates the credential behind our back.
	require.NoError(t, os.WriteFile(path, []byte(`{"token":"fresh"}`), 0600))

	cred, err := p.ForceRefresh(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "fresh", cred.Token)
}

func TestFileProvider_ForceRefresh_SurfacesErrorField(t *testing.T) {
	path := writeCredentialFile(t, t.TempDir(), `{"token":"tok","error":"RefreshAccessTokenError"}`)

	p := NewFileProvider(path)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	cred, err := p.ForceRefresh(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.False(t, cred.Usable())
	assert.Equal(t, "RefreshAccessTokenError", cred.Err)
}

func TestFileProvider_Start_InvalidJSON(t *testing.T) {
	path := writeCredentialFile(t, t.TempDir(), `{not json`)

	p := NewFileProvider(path)
	err := p.Start(context.Background())
	assert.Error(t, err)
}
