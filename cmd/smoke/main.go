package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"fireeye-analysis/internal/fireeye"
	"fireeye-analysis/internal/schemas"
)

var errNotFound = errors.New("not found")

type client struct {
	http    *http.Client
	base    string
	apiKey  string
	feToken string
}

func main() {
	baseFlag := flag.String("base", envOr("API_BASE_URL", "http://localhost:8000"), "API base URL (e.g., http://localhost:8000)")
	keyFlag := flag.String("key", os.Getenv("API_KEY"), "API key printed by the user create command")
	tokenFlag := flag.String("fe-token", os.Getenv("FIREEYE_API_TOKEN"), "FireEye AX token sent as "+fireeye.TokenHeader)
	urlFlag := flag.String("url", "cert.europa.eu", "URL to submit")
	flag.Parse()

	if *keyFlag == "" {
		fatalf("an API key is required (-key or API_KEY)")
	}
	c := &client{
		http:    &http.Client{Timeout: 60 * time.Second},
		base:    *baseFlag,
		apiKey:  *keyFlag,
		feToken: *tokenFlag,
	}

	// 1) Health
	var health map[string]string
	if err := c.do(http.MethodGet, "/healthz", nil, &health); err != nil {
		fatalf("healthz: %v", err)
	}
	fmt.Printf("✅ Health: %s\n", health["status"])

	// 2) Environments, through both trees
	var envs schemas.EnvironmentsResponse
	for _, tree := range []string{"/api/1.0", "/cp/1.0"} {
		if err := c.do(http.MethodGet, tree+"/analysis/fireeye/environments", nil, &envs); err != nil {
			fatalf("environments (%s): %v", tree, err)
		}
		fmt.Printf("✅ %s environments: %d\n", tree, len(envs.Environments))
	}
	if len(envs.Environments) == 0 {
		fatalf("the appliance reports no environments")
	}
	for _, e := range envs.Environments {
		fmt.Printf("   %4d  %s\n", e.ID, e.Name)
	}

	// 3) Submit a URL to the first environment
	env := envs.Environments[0].ID
	body := schemas.SubmitURLsRequest{URLs: []string{*urlFlag}, DynAnalysis: schemas.DynAnalysis{FireEye: []int{env}}}
	var submitted schemas.SubmitResponse
	if err := c.do(http.MethodPost, "/cp/1.0/analysis/fireeye-url", body, &submitted); err != nil {
		fatalf("submit url: %v", err)
	}
	fmt.Printf("✅ %s\n", submitted.Message)
	fmt.Println(compactJSON(submitted.Statuses))

	// 4) Unknown samples and reports are 404 in both trees
	for _, path := range []string{
		"/api/1.0/analysis/fireeye/0000000000000000000000000000000000000000000000000000000000000000/999999999",
		"/cp/1.0/analysis/fireeye/report/0000000000000000000000000000000000000000000000000000000000000000/999999999",
	} {
		err := c.do(http.MethodGet, path, nil, &map[string]any{})
		if !errors.Is(err, errNotFound) {
			fatalf("GET %s: expected 404, got %v", path, err)
		}
	}
	fmt.Println("✅ Unknown sample and report yield 404")

	fmt.Println("🎉 Smoke run OK.")
}

// --- helpers ---

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func (c *client) do(method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.feToken != "" {
		req.Header.Set(fireeye.TokenHeader, c.feToken)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if res.StatusCode/100 != 2 {
		var apiErr schemas.ErrorResponse
		b, _ := io.ReadAll(res.Body)
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s -> %d: %s", method, path, res.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%s %s -> %d: %s", method, path, res.StatusCode, string(b))
	}
	if out != nil {
		return json.NewDecoder(res.Body).Decode(out)
	}
	return nil
}

func compactJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func fatalf(format string, args ...any) {
	fmt.Printf("❌ "+format+"\n", args...)
	os.Exit(1)
}
