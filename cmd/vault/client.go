package main

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/org/passvault/pkg/models"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return e.Message
}

// Client is an HTTP client for the passvault API.
type Client struct {
	addr  string
	token string
	http  *http.Client
}

// NewClient creates a Client for the server at addr.
func NewClient(addr, token, caCert string) *Client {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caCert != "" {
		data, err := os.ReadFile(caCert)
		if err == nil {
			pool := x509.NewCertPool()
			pool.AppendCertsFromPEM(data)
			tlsCfg.RootCAs = pool
		}
	}

	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: &http.Transport{TLSClientConfig: tlsCfg},
	}

	return &Client{addr: strings.TrimRight(addr, "/"), token: token, http: httpClient}
}

// newClient creates a Client from the current settings.
func newClient() *Client {
	return NewClient(
		settings.GetString("address"),
		settings.GetString("token"),
		settings.GetString("tls_ca_cert"),
	)
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.addr+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("X-Vault-Token", c.token)
	}

	return c.http.Do(req)
}

// call performs a request and decodes a successful JSON body into out, if non-nil.
func (c *Client) call(method, path string, body, out any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	return parseResponse(resp, out)
}

func parseResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var result struct {
			Errors []string `json:"errors"`
		}
		if json.Unmarshal(data, &result) == nil && len(result.Errors) > 0 {
			apiErr.Message = result.Errors[0]
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, data)
	}
	return nil
}

func credentialPath(id int64) string {
	return "/v1/credentials/" + strconv.FormatInt(id, 10)
}

// Health returns the server health document.
func (c *Client) Health() (map[string]any, error) {
	var out map[string]any
	if err := c.call(http.MethodGet, "/v1/sys/health", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Add stores a new credential and returns its id.
func (c *Client) Add(service, username, password string) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	err := c.call(http.MethodPost, "/v1/credentials", map[string]string{
		"service":  service,
		"username": username,
		"password": password,
	}, &out)
	return out.ID, err
}

// List returns credential summaries, filtered by service when query is non-empty.
func (c *Client) List(query string) ([]models.Summary, error) {
	path := "/v1/credentials"
	if query != "" {
		path += "?q=" + url.QueryEscape(query)
	}
	var out struct {
		Data []models.Summary `json:"data"`
	}
	if err := c.call(http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Get returns one credential summary.
func (c *Client) Get(id int64) (*models.Summary, error) {
	var out models.Summary
	if err := c.call(http.MethodGet, credentialPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reveal returns the decrypted password of one credential.
func (c *Client) Reveal(id int64) (string, error) {
	var out struct {
		Password string `json:"password"`
	}
	if err := c.call(http.MethodPost, credentialPath(id)+"/reveal", nil, &out); err != nil {
		return "", err
	}
	return out.Password, nil
}

// Update applies a partial change to one credential.
func (c *Client) Update(id int64, patch models.Patch) (*models.Summary, error) {
	var out models.Summary
	if err := c.call(http.MethodPatch, credentialPath(id), patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Remove deletes one credential.
func (c *Client) Remove(id int64) error {
	return c.call(http.MethodDelete, credentialPath(id), nil, nil)
}
