package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/healthassist/internal/models"
)

// apiClient talks to a running healthassist server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// apiError is a non-2xx response. Message is the server's "error" field when present.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *apiClient) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		var body struct {
			Error string `json:"error"`
			Field string `json:"field"`
		}
		msg := strings.TrimSpace(string(b))
		if json.Unmarshal(b, &body) == nil && body.Error != "" {
			msg = body.Error
			if body.Field != "" {
				msg += " (" + body.Field + ")"
			}
		}
		return &apiError{Status: resp.StatusCode, Message: msg}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) get(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *apiClient) predict(disease string, overrides map[string]string) (*models.Diagnosis, error) {
	body, err := json.Marshal(models.PredictInput{Overrides: overrides})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/diseases/"+url.PathEscape(disease)+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	var d models.Diagnosis
	if err := c.do(req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *apiClient) report(disease, path, name string, overrides map[string]string) (*models.Diagnosis, error) {
	fields := make(map[string]string, len(overrides)+1)
	for k, v := range overrides {
		fields[k] = v
	}
	if name != "" {
		fields["name"] = name
	}
	req, err := c.uploadRequest("/api/v1/diseases/"+url.PathEscape(disease)+"/report", path, fields)
	if err != nil {
		return nil, err
	}
	var d models.Diagnosis
	if err := c.do(req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *apiClient) extract(path, name string) (*models.ExtractResult, error) {
	fields := map[string]string{}
	if name != "" {
		fields["name"] = name
	}
	req, err := c.uploadRequest("/api/v1/extract", path, fields)
	if err != nil {
		return nil, err
	}
	var res models.ExtractResult
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *apiClient) history(q models.HistoryQuery) ([]*models.Prediction, error) {
	v := url.Values{}
	if q.Disease != "" {
		v.Set("disease", q.Disease)
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	var out struct {
		Predictions []*models.Prediction `json:"predictions"`
	}
	if err := c.get("/api/v1/history?"+v.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Predictions, nil
}

func (c *apiClient) deleteHistory(id string) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+"/api/v1/history/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	var out map[string]string
	return c.do(req, &out)
}

func (c *apiClient) status() (*statusResponse, error) {
	var s statusResponse
	if err := c.get("/api/v1/status", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// uploadRequest builds a multipart POST with the file under "file" plus fields.
func (c *apiClient) uploadRequest(path, file string, fields map[string]string) (*http.Request, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(file))
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(content); err != nil {
		return nil, err
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}
