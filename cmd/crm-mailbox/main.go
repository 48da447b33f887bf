package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ajramos/crm-mailbox/internal/config"
	"github.com/ajramos/crm-mailbox/internal/db"
	"github.com/ajramos/crm-mailbox/internal/outlook"
	"github.com/ajramos/crm-mailbox/internal/services"
	"github.com/ajramos/crm-mailbox/internal/tui"
	"github.com/ajramos/crm-mailbox/internal/version"
	"github.com/ajramos/crm-mailbox/pkg/auth"
	"golang.org/x/oauth2"
)

// configEnvVar overrides the default config file path
const configEnvVar = config.EnvPrefix + "CONFIG"

func main() {
	configPathFlag := flag.String("config", "", "Path to JSON or YAML configuration file (default: ~/.config/crm-mailbox/config.json)")
	setupFlag := flag.Bool("setup", false, "Create a default configuration and show where files live")
	loginFlag := flag.Bool("login", false, "Sign in to the mail provider and store the token")
	versionFlag := flag.Bool("version", false, "Show version information and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s\n\n", version.GetVersionString())
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  %s  Override default config file path\n", configEnvVar)
		fmt.Fprintf(os.Stderr, "  %sPROVIDER_BASE_URL, %sAUTH_ACCESS_TOKEN, ...  Override config values\n", config.EnvPrefix, config.EnvPrefix)
		fmt.Fprintf(os.Stderr, "  A .env file in the working or config directory is loaded first.\n")
	}

	flag.Parse()

	if *versionFlag {
		fmt.Println(version.GetDetailedVersionString())
		return
	}

	if err := config.LoadDotEnv(".env", filepath.Join(config.DefaultConfigDir(), ".env")); err != nil {
		log.Printf("Warning: %v", err)
	}

	configPath := getConfigPath(*configPathFlag)

	if *setupFlag {
		runSetupWizard(configPath)
		return
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Could not load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, logFile, err := tui.InitLogger(cfg.LogFile)
	if err != nil {
		log.Printf("Warning: logging disabled: %v", err)
	} else {
		defer logFile.Close()
	}

	store, err := openTokenStore(cfg)
	if err != nil {
		log.Fatalf("Could not open token store: %v", err)
	}
	oauthCfg := auth.NewOAuth2Config(cfg.Auth.TenantID, cfg.Auth.ClientID, cfg.Auth.RedirectURL, store, cfg.Auth.Scopes...)

	ctx := context.Background()
	if *loginFlag {
		if err := runLogin(ctx, oauthCfg); err != nil {
			log.Fatalf("Login failed: %v", err)
		}
		return
	}

	client := outlook.NewClient(cfg.Provider.BaseURL, tokenSource(ctx, cfg, oauthCfg), &http.Client{Timeout: cfg.GetProviderTimeout()})
	client.SetLogger(logger)

	var history services.SearchHistory
	if cfg.Storage.Enabled {
		dbPath := cfg.Storage.DBPath
		if dbPath == "" {
			dbPath = config.DefaultDBPath()
		}
		st, err := db.Open(ctx, config.ResolvePath(dbPath))
		if err != nil {
			log.Printf("Warning: search history disabled: %v", err)
		} else {
			defer st.Close()
			history = db.NewSearchHistoryStore(st, accountName(cfg))
		}
	}

	theme := config.DefaultColors()
	if cfg.Theme != "" {
		if t, err := config.LoadTheme(config.ResolvePath(cfg.Theme)); err == nil {
			theme = t
		} else {
			log.Printf("Warning: could not load theme: %v", err)
		}
	}

	svc := buildServices(cfg, client, history, logger)
	app := tui.NewApp(cfg, theme, svc, logger)
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running application: %v\n", err)
		os.Exit(1)
	}
}

// buildServices wires the service layer over the provider client
func buildServices(cfg *config.Config, client *outlook.Client, history services.SearchHistory, logger *log.Logger) tui.Services {
	errs := services.NewErrorState()
	errs.SetLogger(logger)

	selection := services.NewSelectionController(cfg.Mailbox.DefaultFolder, cfg.GetNavigationDelay())
	selection.SetLogger(logger)

	mailbox := services.NewMailboxService(client, selection, errs, services.DefaultSelection(cfg.Mailbox.DefaultSelection))
	mailbox.SetLogger(logger)

	attachments := services.NewAttachmentService(client, errs, cfg.Attachments.DownloadPath)
	attachments.SetLogger(logger)

	composition := services.NewCompositionService(client, attachments, mailbox, errs)
	composition.SetLogger(logger)
	composition.SetBodyContentType(cfg.Mailbox.BodyContentType)
	composition.SetDefaultSaveToSent(cfg.Mailbox.SaveToSentItems)

	search := services.NewSearchService(client, mailbox, history, errs)
	search.SetLogger(logger)
	search.SetTop(cfg.Mailbox.SearchTop)
	search.SetFolderAliases(cfg.Mailbox.FolderAliases)

	email := services.NewEmailService(client, mailbox, errs)
	email.SetLogger(logger)

	return tui.Services{
		Mailbox:     mailbox,
		Composition: composition,
		Search:      search,
		Attachments: attachments,
		Email:       email,
		Errors:      errs,
	}
}

// tokenSource prefers a configured static access token over the token store
func tokenSource(ctx context.Context, cfg *config.Config, oauthCfg *auth.OAuth2Config) oauth2.TokenSource {
	if tok := strings.TrimSpace(cfg.Auth.AccessToken); tok != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok, TokenType: "Bearer"})
	}
	return oauthCfg.TokenSource(ctx)
}

// openTokenStore returns the file or keyring store selected by the config
func openTokenStore(cfg *config.Config) (auth.TokenStore, error) {
	if cfg.Auth.TokenStore == "keyring" {
		return auth.OpenKeyringTokenStore(accountName(cfg), config.DefaultConfigDir())
	}
	path := cfg.Auth.TokenPath
	if path == "" {
		path = config.DefaultTokenPath()
	}
	return auth.NewFileTokenStore(config.ResolvePath(path)), nil
}

func accountName(cfg *config.Config) string {
	if a := strings.TrimSpace(cfg.Auth.Account); a != "" {
		return a
	}
	return "default"
}

func runLogin(ctx context.Context, oauthCfg *auth.OAuth2Config) error {
	if oauthCfg.ClientID == "" {
		return fmt.Errorf("auth.client_id is not configured")
	}
	_, err := oauthCfg.Login(ctx, func(authURL string) error {
		fmt.Println("Open this URL in your browser to sign in:")
		fmt.Println()
		fmt.Println("  " + authURL)
		fmt.Println()
		fmt.Println("Waiting for the redirect...")
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Println("Signed in. The token has been stored.")
	return nil
}

// getConfigPath returns the configuration file path using the following priority:
// 1. CLI flag
// 2. Environment variable CRM_MAILBOX_CONFIG
// 3. Default path ~/.config/crm-mailbox/config.json
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := os.Getenv(configEnvVar); envPath != "" {
		return config.ResolvePath(envPath)
	}
	return config.DefaultConfigPath()
}

// runSetupWizard writes a default configuration if none exists and reports
// where the other files live
func runSetupWizard(configPath string) {
	fmt.Println("CRM Mailbox setup")
	fmt.Println("=================")
	fmt.Println()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Configuration file already exists: %s\n", configPath)
	} else {
		fmt.Printf("Create default configuration at %s? [Y/n]: ", configPath)
		var response string
		_, _ = fmt.Scanln(&response)
		if response == "" || strings.EqualFold(response, "y") || strings.EqualFold(response, "yes") {
			if err := config.DefaultConfig().SaveConfig(configPath); err != nil {
				fmt.Printf("Failed to create config file: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Created configuration file: %s\n", configPath)
		}
	}

	fmt.Println()
	fmt.Printf("Token file:     %s\n", config.DefaultTokenPath())
	fmt.Printf("Search history: %s\n", config.DefaultDBPath())
	fmt.Printf("Log file:       %s\n", filepath.Join(config.DefaultLogDir(), "crm-mailbox.log"))
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Set provider.base_url and auth.client_id in the config file")
	fmt.Printf("  2. Run %s --login\n", os.Args[0])
	fmt.Printf("  3. Run %s\n", os.Args[0])
}
