package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	appName = "inboxledger"

	// DefaultAccount is used when no account name is given.
	DefaultAccount = "default"

	// DefaultCredentialsFile is the OAuth client file downloaded from the Cloud console.
	DefaultCredentialsFile = "credentials.json"
)

// ErrNoToken is returned when an account has not been authorized yet.
var ErrNoToken = errors.New("no Google OAuth token")

var accountNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Authenticator turns a credentials file and cached per-account tokens into
// authenticated HTTP clients.
type Authenticator struct {
	CredentialsFile string
	TokenDir        string
	Scopes          []string
}

// NewAuthenticator returns an Authenticator with defaults for empty arguments.
func NewAuthenticator(credentialsFile, tokenDir string) *Authenticator {
	if credentialsFile == "" {
		credentialsFile = DefaultCredentialsFile
	}
	if tokenDir == "" {
		tokenDir = filepath.Join(userCacheDir(), appName)
	}
	return &Authenticator{
		CredentialsFile: credentialsFile,
		TokenDir:        tokenDir,
		Scopes:          DefaultScopes,
	}
}

// Config reads the OAuth client configuration.
func (a *Authenticator) Config() (*oauth2.Config, error) {
	b, err := os.ReadFile(a.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", a.CredentialsFile, err)
	}
	conf, err := google.ConfigFromJSON(b, a.Scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	return conf, nil
}

// TokenPath returns where the token for account is stored.
func (a *Authenticator) TokenPath(account string) string {
	return filepath.Join(a.TokenDir, fmt.Sprintf("google-%s.json", account))
}

// HasToken reports whether a token file exists for account.
func (a *Authenticator) HasToken(account string) bool {
	if err := validateAccountName(account); err != nil {
		return false
	}
	_, err := os.Stat(a.TokenPath(account))
	return err == nil
}

// AuthURL returns the consent URL for account. Offline access is requested so
// the exchanged token carries a refresh token.
func (a *Authenticator) AuthURL(account string) (string, error) {
	if err := validateAccountName(account); err != nil {
		return "", err
	}
	conf, err := a.Config()
	if err != nil {
		return "", err
	}
	return conf.AuthCodeURL("state-"+account, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// SaveToken exchanges an authorization code and stores the token for account.
func (a *Authenticator) SaveToken(ctx context.Context, account, authCode string) error {
	if err := validateAccountName(account); err != nil {
		return err
	}
	conf, err := a.Config()
	if err != nil {
		return err
	}
	tok, err := conf.Exchange(ctx, authCode)
	if err != nil {
		return fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return writeToken(a.TokenPath(account), tok)
}

// TokenSource returns a refreshing token source for account.
func (a *Authenticator) TokenSource(ctx context.Context, account string) (oauth2.TokenSource, error) {
	if err := validateAccountName(account); err != nil {
		return nil, err
	}
	conf, err := a.Config()
	if err != nil {
		return nil, err
	}

	path := a.TokenPath(account)
	tok, err := readToken(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w for account %s", ErrNoToken, account)
	}
	if err != nil {
		return nil, err
	}

	return oauth2.ReuseTokenSource(tok, &persistingTokenSource{
		base: conf.TokenSource(ctx, tok),
		path: path,
		last: tok.AccessToken,
	}), nil
}

// HTTPClient returns an OAuth2 client for account.
// The client is configured to use HTTP/1.1 to avoid HTTP/2 protocol errors
// on long resumable uploads.
func (a *Authenticator) HTTPClient(ctx context.Context, account string) (*http.Client, error) {
	ts, err := a.TokenSource(ctx, account)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   &http.Transport{ForceAttemptHTTP2: false, Proxy: http.ProxyFromEnvironment},
		},
	}, nil
}

// AuthenticationErrorMessage explains how to authorize account.
func AuthenticationErrorMessage(account string) string {
	return fmt.Sprintf("Google OAuth token not found for account %q. Run 'inboxledger auth url --account %s', "+
		"open the URL, then run 'inboxledger auth code --account %s <code>'.", account, account, account)
}

func validateAccountName(account string) error {
	if account == "" {
		return fmt.Errorf("account name cannot be empty")
	}
	if !accountNamePattern.MatchString(account) {
		return fmt.Errorf("invalid account name %q: only letters, digits, '-' and '_' are allowed", account)
	}
	return nil
}

func userCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir
	}
	if runtime.GOOS == "windows" {
		return os.TempDir()
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}
