package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"fileforge/internal/api"
)

// apiClient talks to the daemon's HTTP API.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func newAPIClient(addr, token string) *apiClient {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &apiClient{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *apiClient) getJSON(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *apiClient) postJSON(path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *apiClient) delete(path string) error {
	req, err := http.NewRequest(http.MethodDelete, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// upload streams a local file as a multipart form.
func (c *apiClient) upload(path, owner string) (api.UploadResponse, error) {
	var result api.UploadResponse

	source, err := os.Open(path)
	if err != nil {
		return result, fmt.Errorf("open %s: %w", path, err)
	}
	defer source.Close() //nolint:errcheck

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("owner", owner); err != nil {
		return result, err
	}
	part, err := form.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return result, err
	}
	if _, err := io.Copy(part, source); err != nil {
		return result, fmt.Errorf("read %s: %w", path, err)
	}
	if err := form.Close(); err != nil {
		return result, err
	}

	req, err := http.NewRequest(http.MethodPost, c.base+"/api/files", &body)
	if err != nil {
		return result, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if err := c.do(req, &result); err != nil {
		return result, err
	}
	return result, nil
}

// download fetches a file's bytes. The returned name comes from the
// server's Content-Disposition header and may be empty.
func (c *apiClient) download(id string) (io.ReadCloser, string, error) {
	req, err := http.NewRequest(http.MethodGet, c.base+"/api/files/"+id+"/content", nil)
	if err != nil {
		return nil, "", err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", c.wrapTransportError(err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close() //nolint:errcheck
		return nil, "", decodeAPIError(resp)
	}

	name := ""
	if disposition := resp.Header.Get("Content-Disposition"); disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			name = params["filename"]
		}
	}
	return resp.Body, name, nil
}

func (c *apiClient) do(req *http.Request, out any) error {
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return c.wrapTransportError(err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *apiClient) wrapTransportError(err error) error {
	if strings.Contains(err.Error(), syscall.ECONNREFUSED.Error()) {
		return fmt.Errorf("connect to daemon at %s: connection refused; start the daemon with `fileforged`", c.base)
	}
	return fmt.Errorf("connect to daemon at %s: %w", c.base, err)
}

func decodeAPIError(resp *http.Response) error {
	var payload api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Errorf("%s (HTTP %d)", payload.Error, resp.StatusCode)
	}
	return fmt.Errorf("daemon returned HTTP %d", resp.StatusCode)
}
