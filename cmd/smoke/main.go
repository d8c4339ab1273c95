package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
)

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func (c *client) send(method, path string, body interface{}, out interface{}) (int, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return resp.StatusCode, err
	}
	if !env.Success {
		return resp.StatusCode, fmt.Errorf("%s", env.Message)
	}
	if out != nil {
		return resp.StatusCode, json.Unmarshal(env.Data, out)
	}
	return resp.StatusCode, nil
}

func fail(step string, err error) {
	color.Red("%s failed: %v", step, err)
	os.Exit(1)
}

func main() {
	baseURL := flag.String("url", "http://localhost:3000/api", "API base URL")
	email := flag.String("email", fmt.Sprintf("smoke+%d@chatflow.local", time.Now().Unix()), "account email")
	password := flag.String("password", "smoke-password", "account password")
	prompt := flag.String("prompt", "Where should I travel this year?", "first message")
	flag.Parse()

	c := &client{baseURL: *baseURL, http: &http.Client{Timeout: 90 * time.Second}}
	color.Cyan("🚀 ChatFlow smoke run against %s\n", *baseURL)

	// 1. Account
	color.Yellow("\n1. Register and log in")
	if _, err := c.send("POST", "/auth/register", map[string]string{
		"full_name": "Smoke Test",
		"email":     *email,
		"password":  *password,
	}, nil); err != nil {
		color.White("register: %v (continuing with login)", err)
	}
	var login struct {
		AccessToken string `json:"access_token"`
	}
	if _, err := c.send("POST", "/auth/login", map[string]string{"email": *email, "password": *password}, &login); err != nil {
		fail("login", err)
	}
	c.token = login.AccessToken
	color.Green("token acquired")

	// 2. Conversations
	color.Yellow("\n2. List conversations")
	var conversations []struct {
		Id    string `json:"id"`
		Title string `json:"title"`
	}
	if _, err := c.send("GET", "/chat/v1/conversations", nil, &conversations); err != nil {
		fail("list", err)
	}
	for _, conv := range conversations {
		fmt.Printf("  %s  %s\n", conv.Id, conv.Title)
	}

	color.Yellow("\n3. Start a new chat")
	var created struct {
		Id    string `json:"id"`
		Title string `json:"title"`
	}
	if _, err := c.send("POST", "/chat/v1/conversations", nil, &created); err != nil {
		fail("create", err)
	}
	color.Green("created %s", created.Id)

	// 3. Turn
	color.Yellow("\n4. Send %q", *prompt)
	var sent struct {
		Title string `json:"title"`
	}
	status, err := c.send("POST", "/chat/v1/conversations/"+created.Id+"/messages", map[string]string{"content": *prompt}, &sent)
	if err != nil {
		fail("send", err)
	}
	color.Green("Status: %d, title now %q", status, sent.Title)

	color.Yellow("\n5. Wait for the assistant reply")
	deadline := time.Now().Add(75 * time.Second)
	for time.Now().Before(deadline) {
		var detail struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
				Pending bool   `json:"pending"`
			} `json:"messages"`
		}
		if _, err := c.send("GET", "/chat/v1/conversations/"+created.Id+"/messages", nil, &detail); err != nil {
			fail("poll", err)
		}
		pending := false
		for _, m := range detail.Messages {
			pending = pending || m.Pending
		}
		if !pending {
			for _, m := range detail.Messages {
				fmt.Printf("  [%s] %s\n", m.Role, m.Content)
			}
			color.Green("\n✅ Smoke run completed")
			return
		}
		time.Sleep(time.Second)
	}
	fail("reply", fmt.Errorf("assistant did not answer in time"))
}
