package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yourorg/messenger/internal/client"
	"github.com/yourorg/messenger/internal/logger"
)

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Authenticate and save the session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password := os.Getenv("MESSENGER_PASSWORD")
		if password == "" {
			fmt.Fprint(os.Stderr, "Password: ")
			if _, err := fmt.Scanln(&password); err != nil {
				return fmt.Errorf("read password: %w", err)
			}
		}
		c := client.New(serverURL, logger.Nop())
		u, err := c.Login(cmd.Context(), args[0], password)
		if err != nil {
			return err
		}
		if err := saveSession(session{Token: c.Token(), UserID: u.ID, Email: u.Email}); err != nil {
			return err
		}
		fmt.Printf("logged in as %s (%s)\n", u.Name, u.Email)
		return nil
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List everyone you can start a conversation with",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := authedClient()
		if err != nil {
			return err
		}
		users, err := c.ListUsers(cmd.Context())
		if err != nil {
			return err
		}
		for _, u := range users {
			fmt.Printf("%s\t%s\t%s\n", u.ID, u.Name, u.Email)
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <text>",
	Short: "Send a text message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := authedClient()
		if err != nil {
			return err
		}
		msg, err := c.SendMessage(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("sent %s at %s\n", msg.ID, msg.CreatedAt.Local().Format("15:04:05"))
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear <conversation-id>",
	Short: "Delete every message in a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := authedClient()
		if err != nil {
			return err
		}
		if err := c.ClearChat(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("cleared")
		return nil
	},
}
