package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(usersCmd)
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List contacts with unseen counts and online status",
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

		result, err := api.ListUsers(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		online := make(map[string]struct{}, len(result.OnlineUserIDs))
		for _, id := range result.OnlineUserIDs {
			online[id] = struct{}{}
		}

		if len(result.Users) == 0 {
			fmt.Println("No other users yet.")
			return nil
		}

		for _, u := range result.Users {
			marker := " "
			if _, ok := online[u.ID]; ok {
				marker = "*"
			}

			line := fmt.Sprintf("%s %-20s %s", marker, u.Username, u.FullName)
			if n := result.UnseenMessages[u.ID]; n > 0 {
				line += fmt.Sprintf("  (%d unseen)", n)
			}
			fmt.Println(line)
		}

		fmt.Println("\n* = online")
		return nil
	},
}
