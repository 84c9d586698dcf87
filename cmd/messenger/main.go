// messenger is the terminal client: log in once, then list users, send
// messages and tail conversations live.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yourorg/messenger/internal/client"
	"github.com/yourorg/messenger/internal/logger"
)

var (
	serverURL string
	statePath string
)

// session is what login persists so every other command can skip credentials.
type session struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

var rootCmd = &cobra.Command{
	Use:   "messenger",
	Short: "Terminal client for the messenger server",
	Long: `messenger talks to a messenger server: authenticate with login,
then send messages, list users and follow conversations in real time.`,
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("MESSENGER_SERVER", "http://localhost:8080"), "server base URL")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", defaultStatePath(), "session state file")

	rootCmd.AddCommand(loginCmd, usersCmd, sendCmd, tailCmd, clearCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".messenger.json"
	}
	return filepath.Join(home, ".messenger.json")
}

func saveSession(s session) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(statePath, b, 0o600)
}

func loadSession() (session, error) {
	var s session
	b, err := os.ReadFile(statePath)
	if err != nil {
		return s, fmt.Errorf("no session, run `messenger login` first: %w", err)
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, err
	}
	return s, nil
}

// authedClient builds a client carrying the saved session token.
func authedClient() (*client.Client, session, error) {
	s, err := loadSession()
	if err != nil {
		return nil, s, err
	}
	c := client.New(serverURL, logger.Nop())
	c.SetToken(s.Token)
	return c, s, nil
}
