package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status and connection info",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := os.Stat(cfg.SocketPath); err != nil {
			fmt.Println("Status: stopped")
			fmt.Printf("Socket: %s (not found)\n", cfg.SocketPath)
			fmt.Printf("Server: %s\n", env.Server())
			fmt.Printf("User: %s\n", env.Email())
			os.Exit(1)
		}

		response, err := sendCommand(cfg.SocketPath, "PING")
		if err != nil {
			fmt.Println("Status: error")
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if response != "OK pong" {
			fmt.Println("Status: error")
			fmt.Printf("Response: %s\n", response)
			os.Exit(1)
		}

		itemCount := "?"
		if listResponse, err := sendCommand(cfg.SocketPath, "LIST"); err == nil && strings.HasPrefix(listResponse, "OK ") {
			var names []string
			if json.Unmarshal([]byte(listResponse[3:]), &names) == nil {
				itemCount = fmt.Sprintf("%d", len(names))
			}
		}

		fmt.Println("Status: running")
		fmt.Printf("Socket: %s\n", cfg.SocketPath)
		fmt.Printf("Server: %s\n", env.Server())
		fmt.Printf("User: %s\n", env.Email())
		fmt.Printf("Items: %s\n", itemCount)
		fmt.Printf("Version: %s\n", version)
	},
}
