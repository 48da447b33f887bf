package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ajramos/crm-mailbox/internal/config"
	"github.com/ajramos/crm-mailbox/internal/outlook"
	"github.com/ajramos/crm-mailbox/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigPath_Priority(t *testing.T) {
	assert.Equal(t, "/custom/config.json", getConfigPath("/custom/config.json"))

	t.Setenv(configEnvVar, "/env/config.yaml")
	assert.Equal(t, "/env/config.yaml", getConfigPath(""))

	t.Setenv(configEnvVar, "")
	assert.Contains(t, getConfigPath(""), "config.json")
}

func TestTokenSource_StaticTokenWins(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Auth.AccessToken = "  static-token "
	oauthCfg := auth.NewOAuth2Config("common", "client", "http://localhost:0/cb", auth.NewFileTokenStore(filepath.Join(t.TempDir(), "token.json")))

	tok, err := tokenSource(context.Background(), cfg, oauthCfg).Token()
	require.NoError(t, err)
	assert.Equal(t, "static-token", tok.AccessToken)
}

func TestTokenSource_NoStoredToken(t *testing.T) {
	cfg := config.DefaultConfig()
	oauthCfg := auth.NewOAuth2Config("common", "client", "http://localhost:0/cb", auth.NewFileTokenStore(filepath.Join(t.TempDir(), "token.json")))

	_, err := tokenSource(context.Background(), cfg, oauthCfg).Token()
	assert.ErrorIs(t, err, auth.ErrNoToken)
}

func TestOpenTokenStore_File(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Auth.TokenPath = filepath.Join(t.TempDir(), "tok.json")

	store, err := openTokenStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &auth.FileTokenStore{}, store)
}

func TestAccountName(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Equal(t, "default", accountName(cfg))

	cfg.Auth.Account = " sales@example.com "
	assert.Equal(t, "sales@example.com", accountName(cfg))
}

func TestRunLogin_RequiresClientID(t *testing.T) {
	oauthCfg := auth.NewOAuth2Config("common", "", "http://localhost:0/cb", nil)
	assert.Error(t, runLogin(context.Background(), oauthCfg))
}

func TestBuildServices_WiresConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Mailbox.DefaultFolder = "Sent Items"
	cfg.Mailbox.BodyContentType = outlook.ContentTypeHTML
	cfg.Mailbox.SaveToSentItems = false

	svc := buildServices(cfg, outlook.NewClient(cfg.Provider.BaseURL, nil, nil), nil, nil)
	require.NotNil(t, svc.Mailbox)
	require.NotNil(t, svc.Errors)
	assert.Equal(t, "Sent Items", svc.Mailbox.Selection().Folder)

	comp, err := svc.Composition.OpenCompose()
	require.NoError(t, err)
	assert.Equal(t, outlook.ContentTypeHTML, comp.State.Body.ContentType)
	assert.False(t, comp.State.SaveToSentItems)
}
