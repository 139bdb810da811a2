// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command relayctl is the terminal client for a Relay orchestrator
// server.
//
// Usage:
//
//	relayctl run "search for Go schedulers and write a report"
//	relayctl chat "hello"
//	relayctl tools
//	relayctl source <tool>
//	relayctl rm <tool>
//
// The server address comes from --server or RELAY_SERVER, defaulting to
// http://localhost:8085.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var serverURL string

func main() {
	rootCmd := &cobra.Command{
		Use:   "relayctl",
		Short: "Client for the Relay orchestrator API",
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server",
		envOr("RELAY_SERVER", "http://localhost:8085"), "Relay server base URL")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "run <request...>",
			Short: "Execute a task, streaming progress",
			Args:  cobra.MinimumNArgs(1),
			RunE:  runRun,
		},
		&cobra.Command{
			Use:   "chat <message...>",
			Short: "Send a conversational message",
			Args:  cobra.MinimumNArgs(1),
			RunE:  runChat,
		},
		&cobra.Command{
			Use:   "tools",
			Short: "List registered tools",
			Args:  cobra.NoArgs,
			RunE:  runTools,
		},
		&cobra.Command{
			Use:   "source <tool>",
			Short: "Print a tool's stored source text",
			Args:  cobra.ExactArgs(1),
			RunE:  runSource,
		},
		&cobra.Command{
			Use:   "rm <tool>",
			Short: "Delete a non-built-in tool",
			Args:  cobra.ExactArgs(1),
			RunE:  runRemove,
		},
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Minute}
}

// eventLine mirrors the server's stream.Line shape.
type eventLine struct {
	Mode    string         `json:"mode"`
	Status  string         `json:"status"`
	Step    string         `json:"step"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

func runRun(_ *cobra.Command, args []string) error {
	body, _ := json.Marshal(map[string]any{"user_text": strings.Join(args, " ")})
	resp, err := httpClient().Post(serverURL+"/v1/orchestrator/run", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return httpError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var ev eventLine
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		printEvent(ev)
	}
	return scanner.Err()
}

func printEvent(ev eventLine) {
	label := render(styleStep, ev.Step)
	status := render(statusStyle(ev.Status), ev.Status)
	switch ev.Step {
	case "chatCompleted":
		fmt.Println(render(styleAnswer, ev.Message))
	case "pipelineEnd", "systemError":
		fmt.Printf("%s [%s] %s\n", label, status, ev.Message)
	default:
		summary := ev.Message
		if s, ok := ev.Data["result_summary"].(string); ok {
			summary = s
		}
		fmt.Printf("%s [%s] %s\n", label, status, render(styleDim, summary))
	}
}

func runChat(_ *cobra.Command, args []string) error {
	body, _ := json.Marshal(map[string]any{"user_text": strings.Join(args, " ")})
	resp, err := httpClient().Post(serverURL+"/v1/orchestrator/run/sync", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var parsed struct {
		Result struct {
			Success     bool  `json:"success"`
			FinalOutput any   `json:"final_output"`
			Errors      []any `json:"errors"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return err
	}
	if !parsed.Result.Success {
		return fmt.Errorf("request failed: %v", parsed.Result.Errors)
	}
	fmt.Println(render(styleAnswer, fmt.Sprintf("%v", parsed.Result.FinalOutput)))
	return nil
}

func runTools(_ *cobra.Command, _ []string) error {
	resp, err := httpClient().Get(serverURL + "/v1/orchestrator/tools")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return httpError(resp)
	}

	var parsed struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Provenance  string `json:"provenance"`
			Callable    bool   `json:"callable"`
		} `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return err
	}
	for _, tool := range parsed.Tools {
		state := render(styleSuccess, "callable")
		if !tool.Callable {
			state = render(styleError, "broken")
		}
		fmt.Printf("%-24s %-14s %s  %s\n",
			render(styleStep, tool.Name), tool.Provenance, state, render(styleDim, tool.Description))
	}
	return nil
}

func runSource(_ *cobra.Command, args []string) error {
	resp, err := httpClient().Get(serverURL + "/v1/orchestrator/tools/" + args[0] + "/source")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return httpError(resp)
	}
	if failure := resp.Header.Get("X-Load-Failure"); failure != "" {
		fmt.Fprintln(os.Stderr, render(styleError, "load failure: "+failure))
	}
	_, err = io.Copy(os.Stdout, resp.Body)
	return err
}

func runRemove(_ *cobra.Command, args []string) error {
	req, err := http.NewRequest(http.MethodDelete,
		serverURL+"/v1/orchestrator/tools/"+args[0], nil)
	if err != nil {
		return err
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return httpError(resp)
	}
	fmt.Printf("deleted %s\n", args[0])
	return nil
}

func httpError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &parsed) == nil && parsed.Error != "" {
		return fmt.Errorf("%s: %s", resp.Status, parsed.Error)
	}
	return fmt.Errorf("%s", resp.Status)
}
