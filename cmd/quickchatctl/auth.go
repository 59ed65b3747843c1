package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var signupFullName string

func init() {
	signupCmd.Flags().StringVar(&signupFullName, "full-name", "", "display name (defaults to the username)")

	rootCmd.AddCommand(signupCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}

// promptPassword reads a password line from stdin.
func promptPassword() (string, error) {
	fmt.Print("Password: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("cannot read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var signupCmd = &cobra.Command{
	Use:   "signup <username>",
	Short: "Create an account and log in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := args[0]

		password, err := promptPassword()
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		api := apiFromConfig(cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		result, err := api.Signup(ctx, username, password, signupFullName)
		if err != nil {
			return fmt.Errorf("signup failed: %w", err)
		}

		cfg.Auth.Token = result.Token
		cfg.Auth.UserID = result.User.ID
		cfg.Auth.Username = result.User.Username
		if err := saveConfig(cfg); err != nil {
			return err
		}

		fmt.Printf("Account created. Logged in as %s\n", result.User.Username)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Log in and save the identity token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := args[0]

		password, err := promptPassword()
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		api := apiFromConfig(cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		result, err := api.Login(ctx, username, password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		cfg.Auth.Token = result.Token
		cfg.Auth.UserID = result.User.ID
		cfg.Auth.Username = result.User.Username
		if err := saveConfig(cfg); err != nil {
			return err
		}

		fmt.Printf("Logged in as %s\n", result.User.Username)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the saved identity token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		cfg.Auth = ConfigAuth{}
		if err := saveConfig(cfg); err != nil {
			return err
		}

		fmt.Println("Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := requireAuth(cfg); err != nil {
			return err
		}

		api := apiFromConfig(cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		me, err := api.AuthCheck(ctx)
		if err != nil {
			return fmt.Errorf("token check failed: %w", err)
		}

		fmt.Printf("Username:  %s\n", me.Username)
		fmt.Printf("Full name: %s\n", me.FullName)
		fmt.Printf("User ID:   %s\n", me.ID)
		if me.Bio != "" {
			fmt.Printf("Bio:       %s\n", me.Bio)
		}
		return nil
	},
}
