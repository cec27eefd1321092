package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(getCmd)
}

var getCmd = &cobra.Command{
	Use:   "get <item> [field]",
	Short: "Print one field of a cached item",
	Long: `Print one field of a cached item. The field defaults to "password".

Examples:
  bwcached get google password
  bwcached get openai api-key`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		command := "GET " + args[0]
		if len(args) > 1 {
			command += " " + args[1]
		}
		fmt.Println(payload(mustSend(command)))
	},
}
