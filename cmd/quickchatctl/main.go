/*
Package main implements quickchatctl, the command-line chat client for the
QuickChat server. It drives the client SDK: account commands, the sidebar
listing and an interactive conversation mode over the realtime connection.

Configuration (server URL and the saved identity token) lives in
~/.quickchat/config.toml.
*/
package main

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"quickchat/client"
)

// Config represents the CLI configuration stored in ~/.quickchat/config.toml.
type Config struct {
	Default ConfigDefault `toml:"default"`
	Auth    ConfigAuth    `toml:"auth"`
}

// ConfigDefault holds general client settings.
type ConfigDefault struct {
	BaseURL string `toml:"base_url"`
}

// ConfigAuth holds the saved identity.
type ConfigAuth struct {
	Token    string `toml:"token"`
	UserID   string `toml:"user_id"`
	Username string `toml:"username"`
}

// configDir returns the path to ~/.quickchat, creating it if needed.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".quickchat")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create config directory: %w", err)
	}
	return dir, nil
}

// configPath returns the full path to the config file.
func configPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// loadConfig reads and parses the config file.
// If the file does not exist, it returns a zero-value Config.
func loadConfig() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return &cfg, nil
}

// saveConfig writes the config struct back to disk as TOML.
func saveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	return nil
}

// baseURL resolves the server URL from config with a localhost default.
func (c *Config) baseURL() string {
	if c.Default.BaseURL != "" {
		return c.Default.BaseURL
	}
	return "http://localhost:8080"
}

// apiFromConfig builds an API client carrying the saved token, if any.
func apiFromConfig(cfg *Config) *client.API {
	api := client.NewAPI(cfg.baseURL())
	api.Token = cfg.Auth.Token
	return api
}

// requireAuth returns an error unless a token has been saved by login/signup.
func requireAuth(cfg *Config) error {
	if cfg.Auth.Token == "" {
		return fmt.Errorf("not logged in: run 'quickchatctl login <username>' first")
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "quickchatctl",
	Short: "QuickChat CLI client",
	Long:  "Command-line client for the QuickChat server.\nManage your account, list contacts and chat in real time.",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
