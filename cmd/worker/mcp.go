package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/explorable-research/explorable-backend/internal/auth"
	"github.com/explorable-research/explorable-backend/internal/explorables/mcpserver"
)

var apiKey string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the explorable tools over stdio",
	Long: `Serve create_explorable, get_explorable_status and continue_explorable to an
MCP client over stdin/stdout. Every call acts as the owner of the API key.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&apiKey, "api-key", envOr("EXPLORABLE_API_KEY", ""), "API key identifying the user (or EXPLORABLE_API_KEY)")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	if apiKey == "" {
		return errors.New("an API key is required (--api-key or EXPLORABLE_API_KEY)")
	}

	// Stdout carries the protocol, so logs go to stderr.
	log.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	userID, err := rt.caps.APIKeys.LookupUser(ctx, apiKey)
	if err != nil {
		if errors.Is(err, auth.ErrKeyNotFound) {
			return errors.New("API key is invalid or revoked")
		}
		return fmt.Errorf("resolving API key: %w", err)
	}

	rt.caps.Pipeline.Start(ctx)
	defer rt.caps.Pipeline.Stop()

	log.Printf("MCP server ready for user %s", userID)
	return mcpserver.RunStdio(ctx, rt.caps.Pipeline, userID, version)
}
