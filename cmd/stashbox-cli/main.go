package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sagarc03/stashbox/clientcli"
)

var (
	version = "dev"

	cfgFile    string
	profile    string
	endpoint   string
	token      string
	jsonOutput bool
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:     "stashbox-cli",
	Version: version,
	Short:   "Client for the stashbox blob store",
	Long: `stashbox-cli talks to a stashbox server on behalf of one owner.

Objects are addressed as <bucket>/<key>. The owner is identified by the
bearer token issued with 'stashbox token <owner>', stored in a profile
('stashbox-cli configure add') or passed with --token.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ~/.stashbox/config.yaml, env: STASHBOX_CLI_CONFIG)")
	rootCmd.PersistentFlags().StringVarP(&profile, "profile", "p", "", "profile name (default: the default profile, env: STASHBOX_PROFILE)")
	rootCmd.PersistentFlags().StringVarP(&endpoint, "endpoint", "e", "", "server URL (default: http://localhost:5708, env: STASHBOX_ENDPOINT)")
	rootCmd.PersistentFlags().StringVarP(&token, "token", "t", "", "owner bearer token (env: STASHBOX_OWNER_TOKEN)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")

	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(urlCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(listCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		_ = getFormatter().FormatError(os.Stderr, err)
		os.Exit(1)
	}
}

// getConfigPath returns the profile file path from the flag, the
// environment, or the default location.
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if p := clientcli.ConfigPathFromEnv(); p != "" {
		return p
	}
	return clientcli.DefaultConfigPath()
}

// buildConfig merges config from the profile, env vars, and flags (flags take precedence).
func buildConfig() (*clientcli.Config, error) {
	var configs []*clientcli.Config

	profileName := profile
	if profileName == "" {
		profileName = clientcli.ProfileFromEnv()
	}

	explicit := cfgFile != "" || profileName != ""
	if configPath := getConfigPath(); configPath != "" {
		file, err := clientcli.LoadConfigFile(configPath)
		switch {
		case err == nil:
			p, profileErr := file.GetProfile(profileName)
			if profileErr != nil && (profileName != "" || !errors.Is(profileErr, clientcli.ErrNoProfiles)) {
				return nil, profileErr
			}
			configs = append(configs, clientcli.ConfigFromProfile(p))
		case explicit:
			// Only error if user explicitly asked for a config file or profile
			return nil, err
		}
	}

	configs = append(configs, clientcli.ConfigFromEnv())
	configs = append(configs, &clientcli.Config{Endpoint: endpoint, Token: token})

	return clientcli.MergeConfig(configs...), nil
}

// getFormatter returns the appropriate formatter based on flags.
func getFormatter() clientcli.Formatter {
	return clientcli.NewFormatter(jsonOutput, quiet)
}

// getClient creates and returns a configured client.
func getClient() (*clientcli.Client, error) {
	cfg, err := buildConfig()
	if err != nil {
		return nil, err
	}

	if err := cfg.ValidateWithAuth(); err != nil {
		return nil, fmt.Errorf("%w (run 'stashbox-cli configure add <name>' or pass --token)", err)
	}

	return clientcli.New(cfg)
}

// splitRemote splits "bucket/key" into its parts. The key may be empty.
func splitRemote(remote string) (bucket, key string, err error) {
	bucket, key, _ = strings.Cut(strings.TrimPrefix(remote, "/"), "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid remote %q: want <bucket>/<key>", remote)
	}
	return bucket, key, nil
}

// handleError prints err through the formatter and returns an exitError so
// main doesn't print it twice.
func handleError(w io.Writer, err error) error {
	_ = getFormatter().FormatError(w, err)
	return &exitError{code: 1}
}

// exitError is returned when we want to exit with a specific code
// but don't want the error printed again.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}
