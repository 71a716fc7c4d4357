package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func matchesCmd(args []string) {
	fs := flag.NewFlagSet("matches", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	if err := doRequest(os.Stdout, http.MethodGet, apiURL(*baseURL, "/v1/matches"), 5*time.Second); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func controlCmd(args []string) {
	fs := flag.NewFlagSet("control", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	matchID := fs.String("match", "", "match id (required)")
	_ = fs.Parse(args)

	op := strings.TrimSpace(fs.Arg(0))
	if strings.TrimSpace(*matchID) == "" || op == "" {
		usage()
		os.Exit(2)
	}
	switch op {
	case "start", "pause", "resume", "stop":
	default:
		fmt.Fprintln(os.Stderr, "unknown operation:", op)
		os.Exit(2)
	}
	u := apiURL(*baseURL, "/v1/matches/"+*matchID+"/"+op)
	if err := doRequest(os.Stdout, http.MethodPost, u, 10*time.Second); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func apiURL(base, path string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + path
}

// doRequest copies the response body to out and fails on a non-2xx status.
func doRequest(out io.Writer, method, u string, timeout time.Duration) error {
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return err
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s %s: http %d", method, u, resp.StatusCode)
	}
	return nil
}
