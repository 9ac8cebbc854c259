package google

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testCredentials = `{
  "installed": {
    "client_id": "test-client.apps.googleusercontent.com",
    "client_secret": "test-secret",
    "auth_uri": "https://accounts.google.com/o/oauth2/auth",
    "token_uri": "https://oauth2.googleapis.com/token",
    "redirect_uris": ["http://localhost"]
  }
}`

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	dir := t.TempDir()
	creds := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(creds, []byte(testCredentials), 0o600))
	return NewAuthenticator(creds, filepath.Join(dir, "tokens"))
}

func TestValidateAccountName(t *testing.T) {
	tests := []struct {
		name    string
		account string
		wantErr bool
	}{
		{"valid default", "default", false},
		{"valid with hyphen", "work-email", false},
		{"valid with underscore", "personal_email", false},
		{"valid alphanumeric", "account123", false},
		{"empty", "", true},
		{"with spaces", "my account", true},
		{"with special chars", "account@work", true},
		{"with slash", "work/personal", true},
		{"with dot", "work.email", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAccountName(tt.account)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAuthenticator_TokenPath(t *testing.T) {
	a := NewAuthenticator("", "/tmp/tokens")
	assert.Equal(t, "/tmp/tokens/google-work.json", a.TokenPath("work"))
	assert.Equal(t, DefaultCredentialsFile, a.CredentialsFile)
	assert.Equal(t, DefaultScopes, a.Scopes)
}

func TestAuthenticator_AuthURL(t *testing.T) {
	a := newTestAuthenticator(t)

	url, err := a.AuthURL("work")
	require.NoError(t, err)
	assert.Contains(t, url, "client_id=test-client.apps.googleusercontent.com")
	assert.Contains(t, url, "access_type=offline")
	assert.Contains(t, url, "spreadsheets")

	_, err = a.AuthURL("bad account")
	assert.Error(t, err)
}

func TestAuthenticator_MissingCredentials(t *testing.T) {
	a := NewAuthenticator(filepath.Join(t.TempDir(), "missing.json"), t.TempDir())
	_, err := a.Config()
	assert.Error(t, err)
}

func TestAuthenticator_TokenSource(t *testing.T) {
	a := newTestAuthenticator(t)
	ctx := context.Background()

	_, err := a.TokenSource(ctx, "default")
	assert.ErrorIs(t, err, ErrNoToken)
	assert.False(t, a.HasToken("default"))

	tok := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}
	require.NoError(t, writeToken(a.TokenPath("default"), tok))
	assert.True(t, a.HasToken("default"))

	ts, err := a.TokenSource(ctx, "default")
	require.NoError(t, err)
	got, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "access", got.AccessToken)
	assert.Equal(t, "refresh", got.RefreshToken)
}

func TestHasToken_InvalidAccount(t *testing.T) {
	a := newTestAuthenticator(t)
	assert.False(t, a.HasToken(""))
	assert.False(t, a.HasToken("invalid account"))
}

func TestAuthenticationErrorMessage(t *testing.T) {
	msg := AuthenticationErrorMessage("work")
	assert.Contains(t, msg, "work")
	assert.Contains(t, msg, "OAuth")
}
