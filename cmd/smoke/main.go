// Command smoke exercises a running spaq instance end to end: register a
// tenant, log in, record a decision event and ask the agent about it.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"spaq.app/internal/obs"
)

type result struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	logger := obs.Logger()

	base := flag.String("base", "http://localhost:8080", "base URL of the running service")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}
	email := fmt.Sprintf("smoke-%d@example.com", time.Now().UnixNano())

	call := func(method, path, token string, body, out any) {
		var rd io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			if err != nil {
				logger.Fatalf("%s %s: marshal: %v", method, path, err)
			}
			rd = bytes.NewReader(raw)
		}
		req, err := http.NewRequest(method, *base+path, rd)
		if err != nil {
			logger.Fatalf("%s %s: %v", method, path, err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := client.Do(req)
		if err != nil {
			logger.Fatalf("%s %s: %v", method, path, err)
		}
		defer resp.Body.Close()

		var res result
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			logger.Fatalf("%s %s: decode: %v", method, path, err)
		}
		if !res.Success {
			msg := "unknown error"
			if res.Error != nil {
				msg = res.Error.Message
			}
			logger.Fatalf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
		}
		if out != nil {
			if err := json.Unmarshal(res.Data, out); err != nil {
				logger.Fatalf("%s %s: decode data: %v", method, path, err)
			}
		}
		logger.Printf("%s %s: ok (%d)", method, path, resp.StatusCode)
	}

	call(http.MethodGet, "/healthz", "", nil, nil)

	var session struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	call(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":            email,
		"password":         "smoke-test-pw",
		"name":             "Smoke",
		"organizationName": "Smoke Org",
		"teamName":         "Smoke Team",
	}, &session)

	call(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": "smoke-test-pw",
	}, &session)

	call(http.MethodPost, "/api/events", session.AccessToken, map[string]any{
		"title":   "Adopt smoke testing",
		"context": "verify the deployed service end to end",
		"tags":    []string{"testing"},
	}, nil)

	var answer struct {
		Relevance   float64  `json:"relevance"`
		Suggestions []string `json:"suggestions"`
	}
	call(http.MethodPost, "/api/agent/ask", session.AccessToken, map[string]string{
		"query": "smoke testing",
	}, &answer)
	logger.Printf("agent relevance %.2f, %d suggestions", answer.Relevance, len(answer.Suggestions))

	call(http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refreshToken": session.RefreshToken,
	}, nil)
	call(http.MethodPost, "/api/auth/logout", session.AccessToken, map[string]string{
		"refreshToken": session.RefreshToken,
	}, nil)

	logger.Print("smoke passed")
}
