package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/bwcached/internal/bitwarden"
	"github.com/forest6511/bwcached/internal/keychain"
	"github.com/forest6511/bwcached/internal/session"
)

func init() {
	rootCmd.AddCommand(addCmd)
}

var addCmd = &cobra.Command{
	Use:   "add <item> field=value [field=value ...]",
	Short: "Create a new vault item",
	Long: `Create a new vault item with the given fields, then reload the
daemon cache. The keys password, username, uri/url, and notes map onto the
item's standard fields; everything else becomes a custom field.

Examples:
  bwcached add telegram-bot token=123456:ABC
  bwcached add openai api-key=sk-xxx
  bwcached add google username=user password=secret`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		item, err := buildItem(args[0], args[1:])
		if err != nil {
			return err
		}

		ctx := context.Background()
		provider := newProvider()

		token := os.Getenv("BW_SESSION")
		if token == "" {
			token, err = keychain.New().Get(ctx, session.KeySession)
			if err != nil || token == "" {
				fmt.Fprintln(os.Stderr, "ERROR: BW_SESSION not found")
				fmt.Fprintln(os.Stderr, "Run: bwcached start")
				os.Exit(1)
			}
		}

		if err := provider.ConfigureServer(ctx, env.Server()); err != nil {
			return err
		}

		created, err := provider.CreateItem(ctx, token, *item)
		if err != nil {
			return err
		}
		fmt.Printf("Created: %s (id: %s...)\n", created.Name, shortID(created.ID))

		// Push the new item to the server before the daemon re-reads it.
		if err := provider.Sync(ctx, token); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: sync failed: %v\n", err)
		}

		response, err := sendCommand(cfg.SocketPath, "RELOAD")
		switch {
		case err != nil:
			fmt.Fprintf(os.Stderr, "Warning: cache reload failed: %v\n", err)
		case strings.HasPrefix(response, "OK "):
			fmt.Printf("Cache %s\n", response[3:])
		default:
			fmt.Fprintf(os.Stderr, "Warning: cache reload failed: %s\n", response)
		}
		return nil
	},
}

// buildItem maps field=value arguments onto a login item.
func buildItem(name string, pairs []string) (*bitwarden.Item, error) {
	item := &bitwarden.Item{
		Type:  bitwarden.TypeLogin,
		Name:  name,
		Login: &bitwarden.Login{},
	}

	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("invalid field format %q, expected field=value", pair)
		}
		switch key {
		case "password":
			item.Login.Password = value
		case "username":
			item.Login.Username = value
		case "uri", "url":
			item.Login.URIs = []bitwarden.URI{{URI: value}}
		case "notes":
			item.Notes = value
		default:
			item.Fields = append(item.Fields, bitwarden.CustomField{
				Name:  key,
				Value: &value,
			})
		}
	}
	return item, nil
}

// shortID returns the first 8 characters of an item id.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
