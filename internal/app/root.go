// Package app wires the chatkit CLI: configuration, logging, and the
// commands that drive the session, REST, and realtime layers.
package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"chatkit/internal/api"
	"chatkit/internal/auth/session"
)

var rootCmd = &cobra.Command{
	Use:           "chatkit",
	Short:         "Terminal client for the chat service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(chatsCmd)
	rootCmd.AddCommand(watchCmd)
}

// Execute is the CLI entrypoint used by cmd/chatkit.
func Execute() error {
	return rootCmd.Execute()
}

// setup builds the shared client stack from env config.
func setup() (Config, *slog.Logger, *api.Client, error) {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel)

	statePath := cfg.StatePath
	if statePath == "" {
		p, err := session.DefaultStatePath()
		if err != nil {
			return cfg, log, nil, err
		}
		statePath = p
	}

	sess := session.NewManager(log, session.Config{
		BaseURL:    cfg.ServerURL,
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
		Registerer: prometheus.DefaultRegisterer,
	}, session.NewFileStore(statePath))

	client := api.NewClient(log, api.Config{
		BaseURL:   cfg.ServerURL,
		SocketURL: cfg.SocketURL,
		HTTPClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
	}, sess)

	return cfg, log, client, nil
}

var (
	flagUsername string
	flagPassword string
	flagName     string
	flagBio      string
	flagPage     int
	flagCount    int
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate and store the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, client, err := setup()
		if err != nil {
			return err
		}

		if err := client.Login(cmd.Context(), flagUsername, flagPassword); err != nil {
			return err
		}
		fmt.Printf("logged in as %s (user id %s)\n", flagUsername, client.Session().User().ID)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a new account",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, client, err := setup()
		if err != nil {
			return err
		}

		err = client.Register(cmd.Context(), api.RegisterInput{
			Username: flagUsername,
			Name:     flagName,
			Password: flagPassword,
			Bio:      flagBio,
		})
		if err != nil {
			return err
		}
		fmt.Printf("registered %s; run `chatkit login` next\n", flagUsername)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, client, err := setup()
		if err != nil {
			return err
		}
		client.Session().Logout()
		fmt.Println("logged out")
		return nil
	},
}

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List chats",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, client, err := setup()
		if err != nil {
			return err
		}

		page, err := client.Chats(cmd.Context(), flagPage, flagCount)
		if err != nil {
			return err
		}

		for _, c := range page.Chats {
			line := fmt.Sprintf("%s  [%s]  %s", c.ID, c.Type, c.Name)
			if c.UnreadCount > 0 {
				line += fmt.Sprintf("  (%d unread)", c.UnreadCount)
			}
			if c.LastMessage != nil {
				line += fmt.Sprintf("  | %s: %s", c.LastMessage.Sender.Name, c.LastMessage.Content)
			}
			fmt.Println(line)
		}
		fmt.Printf("page %d, %d chats total\n", flagPage, page.Meta.Total)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&flagUsername, "username", "u", "", "username")
	loginCmd.Flags().StringVarP(&flagPassword, "password", "p", "", "password")
	_ = loginCmd.MarkFlagRequired("username")
	_ = loginCmd.MarkFlagRequired("password")

	registerCmd.Flags().StringVarP(&flagUsername, "username", "u", "", "username")
	registerCmd.Flags().StringVarP(&flagPassword, "password", "p", "", "password")
	registerCmd.Flags().StringVar(&flagName, "name", "", "display name")
	registerCmd.Flags().StringVar(&flagBio, "bio", "", "profile bio")
	_ = registerCmd.MarkFlagRequired("username")
	_ = registerCmd.MarkFlagRequired("password")
	_ = registerCmd.MarkFlagRequired("name")

	chatsCmd.Flags().IntVar(&flagPage, "page", 1, "page number")
	chatsCmd.Flags().IntVar(&flagCount, "count", 10, "chats per page")
}
