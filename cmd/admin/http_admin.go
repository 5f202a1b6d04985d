package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	agentID := fs.String("agent", "", "show one agent instead of the engine summary")
	_ = fs.Parse(args)

	path := "/admin/v1/state"
	if id := strings.TrimSpace(*agentID); id != "" {
		path = "/admin/v1/agents/" + url.PathEscape(id)
	}
	call(http.MethodGet, *baseURL, path, nil, 5*time.Second)
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	call(http.MethodPost, *baseURL, "/admin/v1/snapshot", nil, 10*time.Second)
}

func taskCmd(args []string) {
	fs := flag.NewFlagSet("task", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	agentID := fs.String("agent", "", "agent id (required)")
	kind := fs.String("kind", "MOVE_TO", "MOVE_TO|PATROL|ATTACK|RETURN_TO_BASE|FLEE_TO_BASE|DEPOSIT")
	x := fs.Float64("x", 0, "target x")
	z := fs.Float64("z", 0, "target z")
	radius := fs.Float64("radius", 0, "patrol radius")
	target := fs.String("target", "", "target agent id for ATTACK")
	timeout := fs.Float64("timeout", 0, "task timeout (0: default, <0: never)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*agentID) == "" {
		fmt.Fprintln(os.Stderr, "missing -agent")
		os.Exit(2)
	}
	body := map[string]any{"kind": *kind, "timeout": *timeout}
	switch strings.ToUpper(*kind) {
	case "MOVE_TO":
		body["pos"] = [3]float64{*x, 0, *z}
	case "PATROL":
		body["pos"] = [3]float64{*x, 0, *z}
		body["radius"] = *radius
	case "ATTACK":
		body["target_id"] = *target
	}
	b, _ := json.Marshal(body)
	call(http.MethodPost, *baseURL, "/admin/v1/agents/"+url.PathEscape(*agentID)+"/task", strings.NewReader(string(b)), 5*time.Second)
}

func cancelCmd(args []string) {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	agentID := fs.String("agent", "", "agent id (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*agentID) == "" {
		fmt.Fprintln(os.Stderr, "missing -agent")
		os.Exit(2)
	}
	call(http.MethodPost, *baseURL, "/admin/v1/agents/"+url.PathEscape(*agentID)+"/cancel", nil, 5*time.Second)
}

func call(method, baseURL, path string, body io.Reader, timeout time.Duration) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	req, err := http.NewRequest(method, u, body)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
