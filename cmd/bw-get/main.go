// Command bw-get is the thin retrieval client the daemon's SUGGEST output
// refers to: it sends one GET over the unix socket and prints the value.
// Keeping it separate from the main CLI makes $(bw-get item field) cheap
// enough for shell startup files.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

const defaultSocket = "/tmp/bw-secrets.sock"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: bw-get <item> [field]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Examples:")
		fmt.Fprintln(os.Stderr, "  bw-get google password")
		fmt.Fprintln(os.Stderr, "  bw-get openai api-key")
		os.Exit(1)
	}

	command := "GET " + os.Args[1]
	if len(os.Args) > 2 {
		command += " " + os.Args[2]
	}

	socket := os.Getenv("BW_SECRETS_SOCKET")
	if socket == "" {
		socket = defaultSocket
	}

	response, err := send(socket, command)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run: bwcached start")
		os.Exit(1)
	}
	if !strings.HasPrefix(response, "OK ") {
		fmt.Fprintln(os.Stderr, response)
		os.Exit(1)
	}
	fmt.Println(response[3:])
}

func send(socket, command string) (string, error) {
	conn, err := net.DialTimeout("unix", socket, 2*time.Second)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(10 * time.Second))
	if _, err := fmt.Fprintln(conn, command); err != nil {
		return "", err
	}
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("no response from daemon")
	}
	return strings.TrimSpace(scanner.Text()), nil
}
