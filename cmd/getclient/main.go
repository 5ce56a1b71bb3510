// Command getclient is the reader collaborator: it issues GET requests
// against an aggregator, one station at a time or unfiltered, and
// pretty-prints whatever comes back.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/wxagg/aggregator/internal/httpwire"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: getclient <server-url>")
		os.Exit(1)
	}
	serverURL := normalizeURL(os.Args[1])

	client := &getClient{serverURL: serverURL}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\nEnter station_id (or press Enter for all, type 'exit' to quit): ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(input, "exit") {
			fmt.Println("Closing client...")
			break
		}
		client.fetch(input)
	}
}

func normalizeURL(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "http://" + raw
}

type getClient struct {
	serverURL string
	clock     int64
}

func (c *getClient) fetch(stationID string) {
	c.clock++

	u, err := url.Parse(c.serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error fetching weather data: %v\n", err)
		return
	}
	port := u.Port()
	if port == "" {
		port = "8080"
	}
	addr := net.JoinHostPort(u.Hostname(), port)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error fetching weather data: %v\n", err)
		return
	}
	defer conn.Close()

	if err := httpwire.WriteGet(conn, addr, c.clock, stationID); err != nil {
		fmt.Fprintf(os.Stderr, "error fetching weather data: %v\n", err)
		return
	}

	resp, err := httpwire.ParseResponse(bufio.NewReader(conn))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error fetching weather data: %v\n", err)
		return
	}
	if resp.Status != 200 {
		fmt.Fprintf(os.Stderr, "error response: %d\n", resp.Status)
		return
	}

	fmt.Println("===== Fetched weather Data ========")
	fmt.Println(toPretty(resp.Body))
}

// toPretty re-serializes JSON with two-space indentation, matching the
// collaborator's GsonBuilder().setPrettyPrinting() round trip.
func toPretty(body []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		return string(body)
	}
	return buf.String()
}
