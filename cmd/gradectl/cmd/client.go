package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gradeplane/pkg/api"
)

// Client is a minimal HTTP client for the dispatcher API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a dispatcher API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) postJSON(path string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("api error: %s", apiErr.Error)
		}
		return fmt.Errorf("api returned status %d", resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) getJSON(path string, out interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("api returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Provision starts a deliverable for the listed people.
func (c *Client) Provision(delivID string, personIDs []string) (api.Payload, error) {
	var payload api.Payload
	err := c.postJSON("/provision", api.ProvisionRequest{
		DelivID:   delivID,
		PersonIDs: personIDs,
	}, &payload)
	return payload, err
}

// Status fetches a student's progression snapshot.
func (c *Client) Status(personID string) (api.Payload, error) {
	var payload api.Payload
	err := c.getJSON("/status/"+personID, &payload)
	return payload, err
}

// Queue fetches the tier depths.
func (c *Client) Queue() (api.QueueStatusResponse, error) {
	var resp api.QueueStatusResponse
	err := c.getJSON("/queue", &resp)
	return resp, err
}
