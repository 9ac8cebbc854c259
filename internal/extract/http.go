package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/teemow/inboxledger/internal/instrumentation"
	"github.com/teemow/inboxledger/internal/retry"
)

// ErrAgentNotFound is returned by LookupAgent when the configured agent does not exist.
var ErrAgentNotFound = errors.New("extraction agent not found")

// DefaultEndpoint is the LlamaCloud API base URL.
const DefaultEndpoint = "https://api.cloud.llamaindex.ai"

const (
	defaultHTTPTimeout  = 2 * time.Minute
	defaultPollInterval = time.Second
	defaultJobTimeout   = 10 * time.Minute
)

// Extraction job states reported by LlamaExtract.
const (
	jobSuccess        = "SUCCESS"
	jobPartialSuccess = "PARTIAL_SUCCESS"
	jobError          = "ERROR"
	jobCancelled      = "CANCELLED"
)

// HTTPService runs LlamaCloud LlamaExtract agents over the REST API:
//
//	GET  /api/v1/extraction/extraction-agents/by-name/{name}   agent lookup
//	POST /api/v1/files                                         multipart "upload_file"
//	POST /api/v1/extraction/jobs                               {"extraction_agent_id", "file_id"}
//	GET  /api/v1/extraction/jobs/{id}                          job status
//	GET  /api/v1/extraction/jobs/{id}/result                   {"data": {...}}
//
// Requests carry the API key as a bearer token.
type HTTPService struct {
	Endpoint string
	APIKey   string
	Agent    string
	Client   *http.Client

	// PollInterval is the wait between job status requests.
	PollInterval time.Duration
	// JobTimeout bounds one extraction from upload to result.
	JobTimeout time.Duration

	metrics *instrumentation.Metrics

	mu      sync.Mutex
	agentID string
}

func NewHTTPService(endpoint, apiKey, agent string) *HTTPService {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &HTTPService{
		Endpoint:     strings.TrimRight(endpoint, "/"),
		APIKey:       apiKey,
		Agent:        agent,
		Client:       &http.Client{Timeout: defaultHTTPTimeout},
		PollInterval: defaultPollInterval,
		JobTimeout:   defaultJobTimeout,
	}
}

// SetMetrics records every API call of the service on m.
func (s *HTTPService) SetMetrics(m *instrumentation.Metrics) {
	s.metrics = m
}

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("extraction service returned %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the request may succeed when retried.
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// JobError is an extraction job that ended without a result.
type JobError struct {
	JobID  string
	Status string
	Reason string
}

func (e *JobError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("extraction job %s ended with status %s", e.JobID, e.Status)
	}
	return fmt.Sprintf("extraction job %s ended with status %s: %s", e.JobID, e.Status, e.Reason)
}

type agentResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type fileResponse struct {
	ID string `json:"id"`
}

type jobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

// LookupAgent checks that the configured agent exists and remembers its id.
func (s *HTTPService) LookupAgent(ctx context.Context) error {
	_, err := s.resolveAgent(ctx)
	return err
}

func (s *HTTPService) resolveAgent(ctx context.Context) (string, error) {
	if s.Agent == "" {
		return "", fmt.Errorf("%w: no agent configured", ErrAgentNotFound)
	}
	s.mu.Lock()
	id := s.agentID
	s.mu.Unlock()
	if id != "" {
		return id, nil
	}

	var agent agentResponse
	u := s.Endpoint + "/api/v1/extraction/extraction-agents/by-name/" + url.PathEscape(s.Agent)
	err := s.getJSON(ctx, instrumentation.OperationGet, u, &agent)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", ErrAgentNotFound, s.Agent)
	}
	if err != nil {
		return "", err
	}
	if agent.ID == "" {
		return "", fmt.Errorf("%w: %s has no id", ErrAgentNotFound, s.Agent)
	}

	s.mu.Lock()
	s.agentID = agent.ID
	s.mu.Unlock()
	return agent.ID, nil
}

// Extract uploads the file at path, runs the agent on it and returns the
// result's "data" object. Client errors other than 429 are permanent;
// everything else may be retried.
func (s *HTTPService) Extract(ctx context.Context, path string) (map[string]any, error) {
	agentID, err := s.resolveAgent(ctx)
	if err != nil {
		return nil, classify(err)
	}
	if s.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.JobTimeout)
		defer cancel()
	}

	fileID, err := s.upload(ctx, path)
	if err != nil {
		return nil, classify(err)
	}

	var job jobResponse
	err = s.sendJSON(ctx, instrumentation.OperationCreate, s.Endpoint+"/api/v1/extraction/jobs",
		map[string]string{"extraction_agent_id": agentID, "file_id": fileID}, &job)
	if err != nil {
		return nil, classify(err)
	}
	if err := s.wait(ctx, &job); err != nil {
		return nil, classify(err)
	}

	var result struct {
		Data map[string]any `json:"data"`
	}
	if err := s.getJSON(ctx, instrumentation.OperationExtract, s.jobURL(job.ID)+"/result", &result); err != nil {
		return nil, classify(err)
	}
	if result.Data == nil {
		return map[string]any{}, nil
	}
	return result.Data, nil
}

func (s *HTTPService) jobURL(id string) string {
	return s.Endpoint + "/api/v1/extraction/jobs/" + url.PathEscape(id)
}

// upload sends the file as multipart form data and returns its file id.
func (s *HTTPService) upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to open %s: %w", path, err))
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("upload_file", filepath.Base(path))
	if err != nil {
		return "", retry.Permanent(err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to read %s: %w", path, err))
	}
	if err := mw.Close(); err != nil {
		return "", retry.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint+"/api/v1/files", &body)
	if err != nil {
		return "", retry.Permanent(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var file fileResponse
	if err := s.doJSON(req, instrumentation.OperationUpload, &file); err != nil {
		return "", err
	}
	if file.ID == "" {
		return "", errors.New("file upload returned no id")
	}
	return file.ID, nil
}

// wait polls the job until it leaves the pending state.
func (s *HTTPService) wait(ctx context.Context, job *jobResponse) error {
	interval := s.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		switch job.Status {
		case jobSuccess, jobPartialSuccess:
			return nil
		case jobError, jobCancelled:
			return &JobError{JobID: job.ID, Status: job.Status, Reason: job.Error}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for extraction job %s: %w", job.ID, ctx.Err())
		case <-timer.C:
		}
		if err := s.getJSON(ctx, instrumentation.OperationGet, s.jobURL(job.ID), job); err != nil {
			return err
		}
		timer.Reset(interval)
	}
}

func (s *HTTPService) getJSON(ctx context.Context, operation, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return retry.Permanent(err)
	}
	return s.doJSON(req, operation, out)
}

func (s *HTTPService) sendJSON(ctx context.Context, operation, u string, in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return retry.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(raw))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	return s.doJSON(req, operation, out)
}

// doJSON sends req and decodes the response into out. Numbers are kept as
// json.Number so large quantities survive.
func (s *HTTPService) doJSON(req *http.Request, operation string, out any) (err error) {
	defer func(start time.Time) {
		s.metrics.ObserveAPICall(req.Context(), instrumentation.ServiceExtraction, operation, start, err)
	}(time.Now())

	resp, err := s.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode extraction response: %w", err)
	}
	return nil
}

func (s *HTTPService) do(req *http.Request) (*http.Response, error) {
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}

// classify marks client errors other than 429 and a missing agent as
// permanent.
func classify(err error) error {
	var se *StatusError
	if errors.As(err, &se) && !se.Transient() {
		return retry.Permanent(err)
	}
	if errors.Is(err, ErrAgentNotFound) {
		return retry.Permanent(err)
	}
	return err
}
