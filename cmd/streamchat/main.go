package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"streamchat/internal/api"
	"streamchat/internal/chat"
	"streamchat/internal/cli"
	"streamchat/internal/core"
	"streamchat/internal/repository"
)

var (
	// Global flags
	configPath string
	logLevel   string

	// chat/history flags
	serverURL      string
	conversationID string
	remote         bool
)

var rootCmd = &cobra.Command{
	Use:   "streamchat",
	Short: "Streaming chat client with reconnection and local transcripts",
	Long: `streamchat talks to a chat server over a WebSocket, renders the
assistant's reply as it streams in, and keeps a transcript of every
finished message on disk.

Run without arguments to start an interactive chat.`,
	SilenceUsage: true,
	RunE:         runChat,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE:  runChat,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the messages of a conversation",
	RunE:  runHistory,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations with a local transcript",
	RunE:  runList,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (environment variables override it)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&conversationID, "conversation", "", "Conversation id (default: new conversation)")

	rootCmd.Flags().StringVar(&serverURL, "url", "", "WebSocket URL of the chat server")
	chatCmd.Flags().StringVar(&serverURL, "url", "", "WebSocket URL of the chat server")
	historyCmd.Flags().BoolVar(&remote, "remote", false, "Fetch the server's copy instead of the local transcript")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(listCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*core.Config, error) {
	var cfg *core.Config
	var err error
	if configPath != "" {
		cfg, err = core.LoadConfigFile(configPath)
	} else {
		cfg, err = core.LoadConfig()
	}
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if conversationID != "" {
		cfg.ConversationID = conversationID
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newCache(cfg *core.Config, logger core.Logger) (*api.ConversationCache, error) {
	apiConfig := api.ConfigFromCore(cfg)
	client, err := api.NewClient(apiConfig, logger)
	if err != nil {
		return nil, err
	}
	return api.NewConversationCache(client, apiConfig.CacheTTL, apiConfig.Timeout, logger), nil
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := core.NewLoggerWithWriter(cfg.LogLevel, os.Stderr)

	opts := chat.OptionsFromConfig(cfg)
	opts.Logger = logger

	var cache *api.ConversationCache
	if cfg.APIBaseURL != "" {
		cache, err = newCache(cfg, logger)
		if err != nil {
			return err
		}
		defer cache.Close()
		opts.Invalidator = cache
	}

	session, err := chat.NewSession(opts)
	if err != nil {
		return err
	}

	store := repository.NewTranscriptStore(cfg.DataDir, logger)
	ui := cli.NewSession(session, store, os.Stdin, os.Stdout, logger)
	ui.Cache = cache

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return ui.Run(ctx)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.ConversationID == "" {
		return fmt.Errorf("--conversation is required")
	}
	logger := core.NewLoggerWithWriter(cfg.LogLevel, os.Stderr)

	if remote {
		cache, err := newCache(cfg, logger)
		if err != nil {
			return err
		}
		defer cache.Close()

		conv, err := cache.Get(cmd.Context(), cfg.ConversationID)
		if err != nil {
			return err
		}
		fmt.Printf("📜 %s (%s)\n", conv.Title, conv.ID)
		cli.PrintHistory(os.Stdout, conv.Messages)
		return nil
	}

	store := repository.NewTranscriptStore(cfg.DataDir, logger)
	lock := store.NewLock("history")
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer lock.Release()

	messages, err := store.ReadTranscript(cfg.ConversationID)
	if err != nil {
		return err
	}
	fmt.Printf("📜 %s\n", cfg.ConversationID)
	cli.PrintHistory(os.Stdout, messages)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store := repository.NewTranscriptStore(cfg.DataDir, core.NewLoggerWithWriter(cfg.LogLevel, os.Stderr))
	ids, err := store.ListConversations()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Printf("No conversations in %s yet.\n", store.BaseDir())
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}
