package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the names of all cached items",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		raw := payload(mustSend("LIST"))

		var names []string
		if err := json.Unmarshal([]byte(raw), &names); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: malformed daemon response: %v\n", err)
			os.Exit(1)
		}
		for _, name := range names {
			fmt.Println(name)
		}
	},
}
