package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"quickchat/client"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat <username>",
	Short: "Open an interactive conversation",
	Long:  "Open a live conversation with another user.\nIncoming messages print as they arrive; type a line to send, /quit to leave.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		peerName := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := requireAuth(cfg); err != nil {
			return err
		}

		api := apiFromConfig(cfg)
		engine := client.NewEngine(api, client.EngineConfig{})

		ctx := context.Background()

		sidebar, err := engine.RefreshUsers(ctx)
		if err != nil {
			return fmt.Errorf("cannot list users: %w", err)
		}

		var peer *client.User
		for i := range sidebar.Users {
			if sidebar.Users[i].Username == peerName {
				peer = &sidebar.Users[i]
				break
			}
		}
		if peer == nil {
			return fmt.Errorf("no such user: %s", peerName)
		}

		engine.OnMessageReceived(func(msg client.Message) {
			if msg.SenderID == peer.ID {
				fmt.Printf("%s: %s\n", peer.Username, renderBody(msg))
			} else {
				fmt.Printf("[%d unseen from %s]\n", engine.UnseenCount(msg.SenderID), msg.SenderID)
			}
		})
		tracker := newPresenceTracker(peer.ID, sidebar.OnlineUserIDs)
		engine.OnPresenceChanged(func(online []string) {
			changed, nowOnline := tracker.observe(online)
			if !changed {
				return
			}
			if nowOnline {
				fmt.Printf("-- %s is online --\n", peer.Username)
			} else {
				fmt.Printf("-- %s went offline --\n", peer.Username)
			}
		})
		engine.OnStateChange(func(s client.State) {
			switch s {
			case client.StateReconnecting:
				fmt.Println("-- connection lost, reconnecting --")
			case client.StateDisconnected:
				fmt.Println("-- disconnected --")
			}
		})

		if err := engine.Connect(ctx); err != nil {
			return fmt.Errorf("cannot connect: %w", err)
		}
		defer engine.Close()

		if err := engine.SelectPeer(ctx, peer.ID); err != nil {
			return fmt.Errorf("cannot open conversation: %w", err)
		}

		for _, msg := range engine.Messages() {
			name := cfg.Auth.Username
			if msg.SenderID == peer.ID {
				name = peer.Username
			}
			fmt.Printf("%s: %s\n", name, renderBody(msg))
		}

		fmt.Printf("-- chatting with %s, /quit to leave --\n", peer.Username)

		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "/quit" {
				break
			}

			sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_, err := engine.SendMessage(sendCtx, peer.ID, line, "")
			cancel()
			if err != nil {
				fmt.Printf("-- send failed: %v --\n", err)
			}
		}

		return scanner.Err()
	},
}

// renderBody formats a message body for the terminal.
func renderBody(msg client.Message) string {
	if msg.ImageURL != "" {
		return fmt.Sprintf("[image] %s", msg.ImageURL)
	}
	return msg.Text
}

// presenceTracker remembers whether one user appeared in the last presence
// snapshot, so the chat view announces transitions rather than echoing
// every event. Only touched from the engine's dispatch goroutine once
// handlers are registered.
type presenceTracker struct {
	userID string
	online bool
}

func newPresenceTracker(userID string, onlineIDs []string) *presenceTracker {
	return &presenceTracker{userID: userID, online: containsID(onlineIDs, userID)}
}

// observe records the snapshot and reports whether the tracked user's
// presence flipped, together with the new state.
func (p *presenceTracker) observe(onlineIDs []string) (changed, online bool) {
	now := containsID(onlineIDs, p.userID)
	changed = now != p.online
	p.online = now
	return changed, now
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
