package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cs-go/internal/app"
	"cs-go/internal/config"
	"cs-go/internal/encryption"
	"cs-go/internal/mirror"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var configPath string

// resolveConfigPath returns --config when given and the default otherwise.
func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	defaults, err := app.GetDefaults()
	if err != nil {
		return "", fmt.Errorf("getting defaults: %w", err)
	}
	return defaults["config_path"], nil
}

func loadConfig() (*config.Config, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := app.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a CSApp. The caller must defer app.Close().
func newApp(ctx context.Context) (*app.CSApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewCSApp(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// readPassphrase prompts on the terminal without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:          "cs",
	Short:        "Mirror Canvas courses into a local directory",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		token, _ := cmd.Flags().GetString("token")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}

		cfg := config.NewConfig(url, token, defaults["base_dir"])
		if err := config.Init(path, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", path)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		if token == "" {
			fmt.Printf("Set access_token in the file or %s in the environment.\n", config.EnvAccessToken)
		}
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		token := "(not set)"
		if cfg.AccessToken != "" {
			token = "(set)"
		}
		mirror := cfg.Mirror.Type
		if mirror == "" {
			mirror = "(none)"
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("URL:           %s\n", cfg.URL)
		fmt.Printf("Access Token:  %s\n", token)
		fmt.Printf("Database:      %s\n", cfg.DBName)
		fmt.Printf("Output Path:   %s\n", cfg.OutputPath)
		fmt.Printf("Poll Interval: %s\n", cfg.PollInterval)
		fmt.Printf("Log Dir:       %s\n", cfg.LogDir)
		fmt.Printf("Link Recipes:  %v\n", cfg.LinkRecipes)
		fmt.Printf("Ignore:        %v\n", cfg.Ignore)
		fmt.Printf("Mirror:        %s (encrypt=%t)\n", mirror, cfg.Mirror.Encrypt)
		if cfg.MetricsAddr != "" {
			fmt.Printf("Metrics:       %s\n", cfg.MetricsAddr)
		}
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage mirror encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the key pair used to encrypt mirrored files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return errors.New("passphrases do not match")
		}

		if err := app.SetupKeys(afero.NewOsFs(), cfg, pass); err != nil {
			if errors.Is(err, encryption.ErrKeysExist) {
				return fmt.Errorf("keys already exist at %s", cfg.Encryption.PublicKeyPath)
			}
			return err
		}

		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// decrypt command
var decryptCmd = &cobra.Command{
	Use:   "decrypt IN OUT",
	Short: "Decrypt a mirrored file",
	Long:  "Decrypt a mirrored file. With --mirror, IN is a mirror key such as \"intro to cs/week 1/notes.pdf\" fetched from the configured mirror.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fromMirror, _ := cmd.Flags().GetBool("mirror")

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		fs := afero.NewOsFs()
		if fromMirror {
			err = app.DecryptMirrored(cmd.Context(), fs, cfg, pass, args[0], args[1])
		} else {
			err = app.DecryptFile(fs, cfg, pass, args[0], args[1])
		}
		if errors.Is(err, mirror.ErrNotFound) {
			return fmt.Errorf("%s is not in the mirror", args[0])
		}
		if err != nil {
			return err
		}

		fmt.Printf("Decrypted %s to %s\n", args[0], args[1])
		return nil
	},
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the catalog and keep the output up to date",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run(ctx)
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a single sync cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		run, err := a.Sync(ctx)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		fmt.Printf("Saved %d file(s) and %d link(s) from %d course(s)", run.FilesSaved, run.LinksSaved, run.CoursesTraversed)
		if run.ItemsFailed > 0 {
			fmt.Printf(", %d item(s) failed and will be retried", run.ItemsFailed)
		}
		fmt.Println()
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the next cycle will do",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		status, err := a.GetStatus()
		if err != nil {
			return err
		}

		fmt.Println("Pending:")
		for _, k := range status.Kinds {
			fmt.Printf("  %-15s %d\n", k.Kind, k.Pending)
		}

		if len(status.Courses) == 0 {
			fmt.Println("\nNo courses seeded yet.")
			return nil
		}
		fmt.Println("\nCourses:")
		for _, c := range status.Courses {
			indicator := "S"
			if c.Pending {
				indicator = "P"
			}
			saved := c.SavedAt
			if saved == "" {
				saved = "never"
			}
			fmt.Printf("  %s  #%-8d %-40s %-15s saved: %s\n", indicator, c.ID, c.Name, c.Term, saved)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sync cycle history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.GetHistory(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No sync cycles recorded.")
			return nil
		}

		for _, run := range runs {
			duration := ""
			if run.FinishedAt.Valid {
				d := run.FinishedAt.Time.Sub(run.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("%s  %s  %-8s  courses:%d files:%d links:%d failed:%d  %s\n",
				shortID(run.ID),
				run.StartedAt.Format("2006-01-02 15:04:05"),
				run.Status,
				run.CoursesTraversed,
				run.FilesSaved,
				run.LinksSaved,
				run.ItemsFailed,
				duration,
			)
			if run.Error != "" {
				fmt.Printf("          %s\n", run.Error)
			}
		}
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $CS_CONFIG_PATH or ~/.config/cs.toml)")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("url", "", "Canvas base URL")
	configInitCmd.Flags().String("token", "", "Canvas access token")

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(decryptCmd)
	decryptCmd.Flags().Bool("mirror", false, "Fetch IN from the configured mirror")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of cycles to show")
}
