package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(fieldsCmd)
}

var fieldsCmd = &cobra.Command{
	Use:   "fields <item>",
	Short: "List an item's fields as shell export lines",
	Long: `List all fields of a cached item as suggested environment variable
assignments, ready to paste into a shell script or .envrc.

Example:
  bwcached fields google`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		raw := payload(mustSend("SUGGEST " + args[0]))

		var suggestions map[string]string
		if err := json.Unmarshal([]byte(raw), &suggestions); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: malformed daemon response: %v\n", err)
			os.Exit(1)
		}

		vars := make([]string, 0, len(suggestions))
		for name := range suggestions {
			vars = append(vars, name)
		}
		sort.Strings(vars)
		for _, name := range vars {
			fmt.Printf("%s=$(%s)\n", name, suggestions[name])
		}
	},
}
