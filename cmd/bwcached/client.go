package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// sendCommand sends one protocol line to the daemon and returns the
// response line.
func sendCommand(socketPath, command string) (string, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return "", fmt.Errorf("failed to reach daemon at %s: %w", socketPath, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(10 * time.Second))
	if _, err := fmt.Fprintln(conn, command); err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read response: %w", err)
		}
		return "", fmt.Errorf("daemon closed connection without responding")
	}
	return strings.TrimSpace(scanner.Text()), nil
}

// mustSend sends a command and exits on transport failure with a hint to
// start the daemon.
func mustSend(command string) string {
	response, err := sendCommand(cfg.SocketPath, command)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run: bwcached start")
		os.Exit(1)
	}
	return response
}

// payload strips the "OK " prefix, or exits printing the error response.
func payload(response string) string {
	if strings.HasPrefix(response, "OK ") {
		return response[3:]
	}
	fmt.Fprintln(os.Stderr, response)
	os.Exit(1)
	return ""
}
