package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/models"
)

const apiPrefix = "/api/2.0/mlflow/"

// Largest page the server returns for a metric history.
const metricHistoryPageSize = 25000

// Client talks to the MLflow tracking server REST API. It holds no mutable
// state and is safe for concurrent use.
type Client struct {
	baseURL  string
	http     *http.Client
	token    string
	username string
	password string
	pageSize int
}

// NewClient creates a client for the tracking server described by cfg.
func NewClient(cfg models.TrackingConfig) (*Client, error) {
	uri := strings.TrimRight(strings.TrimSpace(cfg.URI), "/")
	if uri == "" {
		return nil, fmt.Errorf("tracking URI not set (use --tracking-uri or MLFLOW_TRACKING_URI)")
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing tracking URI: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported tracking URI scheme %q (want http or https)", u.Scheme)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}

	return &Client{
		baseURL:  uri,
		http:     &http.Client{Timeout: time.Duration(cfg.TimeoutSec * float64(time.Second))},
		token:    cfg.Token,
		username: cfg.Username,
		password: cfg.Password,
		pageSize: pageSize,
	}, nil
}

// URI returns the tracking server base URI.
func (c *Client) URI() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body, out any) error {
	target := c.baseURL + apiPrefix + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", endpoint, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.username != "":
		req.SetBasicAuth(c.username, c.password)
	}

	slog.Debug("tracking request", "method", method, "endpoint", endpoint)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Method: method, Endpoint: endpoint, StatusCode: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s response: %w", endpoint, err)
	}
	return nil
}

// SearchExperiments returns every experiment matching filter, following pagination.
func (c *Client) SearchExperiments(ctx context.Context, filter, viewType string) ([]Experiment, error) {
	if viewType == "" {
		viewType = ViewActiveOnly
	}
	var all []Experiment
	token := ""
	for {
		req := map[string]any{"max_results": c.pageSize, "view_type": viewType}
		if filter != "" {
			req["filter"] = filter
		}
		if token != "" {
			req["page_token"] = token
		}
		var resp struct {
			Experiments   []Experiment `json:"experiments"`
			NextPageToken string       `json:"next_page_token"`
		}
		if err := c.do(ctx, http.MethodPost, "experiments/search", nil, req, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Experiments...)
		if resp.NextPageToken == "" {
			return all, nil
		}
		token = resp.NextPageToken
	}
}

func (c *Client) GetExperiment(ctx context.Context, experimentID string) (*Experiment, error) {
	var resp struct {
		Experiment Experiment `json:"experiment"`
	}
	q := url.Values{"experiment_id": {experimentID}}
	if err := c.do(ctx, http.MethodGet, "experiments/get", q, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Experiment, nil
}

func (c *Client) GetExperimentByName(ctx context.Context, name string) (*Experiment, error) {
	var resp struct {
		Experiment Experiment `json:"experiment"`
	}
	q := url.Values{"experiment_name": {name}}
	if err := c.do(ctx, http.MethodGet, "experiments/get-by-name", q, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Experiment, nil
}

// CreateExperiment creates an experiment and returns its ID.
func (c *Client) CreateExperiment(ctx context.Context, name string, tags map[string]string) (string, error) {
	req := map[string]any{"name": name}
	if t := MapToTags(tags); len(t) > 0 {
		req["tags"] = t
	}
	var resp struct {
		ExperimentID string `json:"experiment_id"`
	}
	if err := c.do(ctx, http.MethodPost, "experiments/create", nil, req, &resp); err != nil {
		return "", err
	}
	return resp.ExperimentID, nil
}

// SearchRuns returns every run of an experiment matching filter, following pagination.
func (c *Client) SearchRuns(ctx context.Context, experimentID, filter, viewType string) ([]Run, error) {
	if viewType == "" {
		viewType = ViewActiveOnly
	}
	var all []Run
	token := ""
	for {
		req := map[string]any{
			"experiment_ids": []string{experimentID},
			"run_view_type":  viewType,
			"max_results":    c.pageSize,
		}
		if filter != "" {
			req["filter"] = filter
		}
		if token != "" {
			req["page_token"] = token
		}
		var resp struct {
			Runs          []Run  `json:"runs"`
			NextPageToken string `json:"next_page_token"`
		}
		if err := c.do(ctx, http.MethodPost, "runs/search", nil, req, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Runs...)
		if resp.NextPageToken == "" {
			return all, nil
		}
		token = resp.NextPageToken
	}
}

func (c *Client) GetRun(ctx context.Context, runID string) (*Run, error) {
	var resp struct {
		Run Run `json:"run"`
	}
	if err := c.do(ctx, http.MethodGet, "runs/get", url.Values{"run_id": {runID}}, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Run, nil
}

// GetMetricHistory returns every logged value of a run's metric, following
// pagination.
func (c *Client) GetMetricHistory(ctx context.Context, runID, key string) ([]Metric, error) {
	var all []Metric
	token := ""
	for {
		q := url.Values{
			"run_id":      {runID},
			"metric_key":  {key},
			"max_results": {strconv.Itoa(metricHistoryPageSize)},
		}
		if token != "" {
			q.Set("page_token", token)
		}
		var resp struct {
			Metrics       []Metric `json:"metrics"`
			NextPageToken string   `json:"next_page_token"`
		}
		if err := c.do(ctx, http.MethodGet, "metrics/get-history", q, nil, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Metrics...)
		if resp.NextPageToken == "" {
			return all, nil
		}
		token = resp.NextPageToken
	}
}

func (c *Client) CreateRun(ctx context.Context, req CreateRunRequest) (*RunInfo, error) {
	var resp struct {
		Run Run `json:"run"`
	}
	if err := c.do(ctx, http.MethodPost, "runs/create", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Run.Info, nil
}

// LogBatch records metrics, params and tags on a run in a single request.
func (c *Client) LogBatch(ctx context.Context, runID string, metrics []Metric, params []Param, tags []Tag) error {
	req := map[string]any{"run_id": runID}
	if len(metrics) > 0 {
		req["metrics"] = metrics
	}
	if len(params) > 0 {
		req["params"] = params
	}
	if len(tags) > 0 {
		req["tags"] = tags
	}
	return c.do(ctx, http.MethodPost, "runs/log-batch", nil, req, nil)
}

func (c *Client) UpdateRun(ctx context.Context, runID, status string, endTime int64) error {
	req := map[string]any{"run_id": runID, "status": status}
	if endTime > 0 {
		req["end_time"] = endTime
	}
	return c.do(ctx, http.MethodPost, "runs/update", nil, req, nil)
}

// SearchRegisteredModels returns every registered model, following pagination.
func (c *Client) SearchRegisteredModels(ctx context.Context) ([]RegisteredModel, error) {
	var all []RegisteredModel
	token := ""
	for {
		q := url.Values{"max_results": {strconv.Itoa(c.pageSize)}}
		if token != "" {
			q.Set("page_token", token)
		}
		var resp struct {
			RegisteredModels []RegisteredModel `json:"registered_models"`
			NextPageToken    string            `json:"next_page_token"`
		}
		if err := c.do(ctx, http.MethodGet, "registered-models/search", q, nil, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.RegisteredModels...)
		if resp.NextPageToken == "" {
			return all, nil
		}
		token = resp.NextPageToken
	}
}

func (c *Client) GetRegisteredModel(ctx context.Context, name string) (*RegisteredModel, error) {
	var resp struct {
		RegisteredModel RegisteredModel `json:"registered_model"`
	}
	if err := c.do(ctx, http.MethodGet, "registered-models/get", url.Values{"name": {name}}, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.RegisteredModel, nil
}

func (c *Client) CreateRegisteredModel(ctx context.Context, name string, tags map[string]string, description string) error {
	req := map[string]any{"name": name}
	if t := MapToTags(tags); len(t) > 0 {
		req["tags"] = t
	}
	if description != "" {
		req["description"] = description
	}
	return c.do(ctx, http.MethodPost, "registered-models/create", nil, req, nil)
}

// DeleteRegisteredModel deletes a registered model and all of its versions.
func (c *Client) DeleteRegisteredModel(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "registered-models/delete", nil, map[string]any{"name": name}, nil)
}

// SearchModelVersions returns every model version matching filter, following pagination.
func (c *Client) SearchModelVersions(ctx context.Context, filter string) ([]ModelVersion, error) {
	var all []ModelVersion
	token := ""
	for {
		q := url.Values{"max_results": {strconv.Itoa(c.pageSize)}}
		if filter != "" {
			q.Set("filter", filter)
		}
		if token != "" {
			q.Set("page_token", token)
		}
		var resp struct {
			ModelVersions []ModelVersion `json:"model_versions"`
			NextPageToken string         `json:"next_page_token"`
		}
		if err := c.do(ctx, http.MethodGet, "model-versions/search", q, nil, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.ModelVersions...)
		if resp.NextPageToken == "" {
			return all, nil
		}
		token = resp.NextPageToken
	}
}

func (c *Client) CreateModelVersion(ctx context.Context, name, source, runID string) (*ModelVersion, error) {
	req := map[string]any{"name": name, "source": source}
	if runID != "" {
		req["run_id"] = runID
	}
	var resp struct {
		ModelVersion ModelVersion `json:"model_version"`
	}
	if err := c.do(ctx, http.MethodPost, "model-versions/create", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp.ModelVersion, nil
}

func (c *Client) GetModelVersion(ctx context.Context, name, version string) (*ModelVersion, error) {
	var resp struct {
		ModelVersion ModelVersion `json:"model_version"`
	}
	q := url.Values{"name": {name}, "version": {version}}
	if err := c.do(ctx, http.MethodGet, "model-versions/get", q, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.ModelVersion, nil
}

func (c *Client) TransitionModelVersionStage(ctx context.Context, name, version, stage string) (*ModelVersion, error) {
	req := map[string]any{
		"name":                      name,
		"version":                   version,
		"stage":                     stage,
		"archive_existing_versions": false,
	}
	var resp struct {
		ModelVersion ModelVersion `json:"model_version"`
	}
	if err := c.do(ctx, http.MethodPost, "model-versions/transition-stage", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp.ModelVersion, nil
}
