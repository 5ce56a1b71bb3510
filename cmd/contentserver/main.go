// Command contentserver is the publisher collaborator: it reads a station
// observation from a key:value text file, stamps it with its own Lamport
// clock, and issues one PUT against an aggregator.
package main

import (
	"bufio"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/wxagg/aggregator/internal/httpwire"
	"github.com/wxagg/aggregator/internal/weather"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: contentserver <server-url> <data-file>")
		os.Exit(1)
	}

	serverURL := parseServerURL(os.Args[1])
	dataFile := os.Args[2]

	content, err := os.ReadFile(dataFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "content server error: failed to read weather data from file: %s: %v\n", dataFile, err)
		os.Exit(1)
	}

	record, err := weather.ParseKeyValueText(string(content))
	if err != nil {
		fmt.Fprintf(os.Stderr, "content server error: %v\n", err)
		os.Exit(1)
	}

	body, err := weather.Encode(record)
	if err != nil {
		fmt.Fprintf(os.Stderr, "content server error: encoding record: %v\n", err)
		os.Exit(1)
	}

	if err := sendUpdate(serverURL, record.ID, body); err != nil {
		fmt.Fprintf(os.Stderr, "error sending update: %v\n", err)
		os.Exit(1)
	}
}

// parseServerURL fills in an http:// scheme and the default port when the
// caller passes a bare host or host:port, matching the collaborator's
// tolerant URL handling.
func parseServerURL(raw string) string {
	if strings.HasPrefix(raw, "http://") {
		return raw
	}
	if strings.Contains(raw, ":") {
		return "http://" + raw
	}
	return "http://" + raw + ":4567"
}

var lamportClock int64

func sendUpdate(serverURL, stationID string, body []byte) error {
	u, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("parsing server url: %w", err)
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "4567"
	}
	addr := net.JoinHostPort(host, port)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer conn.Close()

	lamportClock++
	if err := httpwire.WritePut(conn, addr, lamportClock, body); err != nil {
		return fmt.Errorf("writing PUT: %w", err)
	}

	resp, err := httpwire.ParseResponse(bufio.NewReader(conn))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	fmt.Printf("Update sent for %s (clock=%s) - Status: %d\n", stationID, strconv.FormatInt(lamportClock, 10), resp.Status)
	if resp.Status == 400 {
		fmt.Fprintln(os.Stderr, "out-of-order request rejected")
	}
	return nil
}
