package jobapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	config "github.com/kgforge/kgforge/pkg/kgforge/core/config"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/exception"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/logger"
)

const moduleName = "jobapi"

// OpenAIClient implements Client against the OpenAI Batch API using plain
// net/http: multipart file upload, batch creation, and status lookup.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient creates a job API client from configuration.
// Returns an error when the API key is missing.
func NewOpenAIClient(cfg *config.Config) (*OpenAIClient, error) {
	apiCfg := cfg.Kgforge.JobAPI
	if apiCfg.APIKey == "" {
		return nil, exception.NewBatchError(moduleName, "job API key is not configured (set OPENAI_API_KEY)", nil, false, false)
	}
	timeout := time.Duration(apiCfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		baseURL:    apiCfg.BaseURL,
		apiKey:     apiCfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// jobPayload is the wire shape of a batch job object.
type jobPayload struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	OutputFileID string `json:"output_file_id"`
	ErrorFileID  string `json:"error_file_id"`
}

// filePayload is the wire shape of an uploaded file object.
type filePayload struct {
	ID string `json:"id"`
}

// UploadFile uploads a JSONL request artifact with purpose "batch".
func (c *OpenAIClient) UploadFile(ctx context.Context, filename string, data []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("purpose", "batch"); err != nil {
		return "", exception.NewBatchError(moduleName, "failed to write multipart field", err, false, false)
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", exception.NewBatchError(moduleName, "failed to create multipart file part", err, false, false)
	}
	if _, err := part.Write(data); err != nil {
		return "", exception.NewBatchError(moduleName, "failed to write multipart file content", err, false, false)
	}
	if err := writer.Close(); err != nil {
		return "", exception.NewBatchError(moduleName, "failed to finalize multipart body", err, false, false)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &body)
	if err != nil {
		return "", exception.NewBatchError(moduleName, "failed to build upload request", err, false, false)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var file filePayload
	if err := c.do(req, &file); err != nil {
		return "", err
	}
	logger.Debugf("Uploaded request file '%s' as '%s'.", filename, file.ID)
	return file.ID, nil
}

// CreateJob submits an uploaded file as one asynchronous batch job.
func (c *OpenAIClient) CreateJob(ctx context.Context, inputFileID, endpoint, completionWindow string) (*Job, error) {
	payload := map[string]string{
		"input_file_id":     inputFileID,
		"endpoint":          endpoint,
		"completion_window": completionWindow,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to marshal job request", err, false, false)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/batches", bytes.NewReader(data))
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to build job request", err, false, false)
	}
	req.Header.Set("Content-Type", "application/json")

	var job jobPayload
	if err := c.do(req, &job); err != nil {
		return nil, err
	}
	logger.Infof("Created batch job '%s' (status: %s).", job.ID, job.Status)
	return toJob(&job), nil
}

// GetJob fetches the current state of a job.
func (c *OpenAIClient) GetJob(ctx context.Context, jobID string) (*Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/batches/"+jobID, nil)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to build status request", err, false, false)
	}

	var job jobPayload
	if err := c.do(req, &job); err != nil {
		return nil, err
	}
	return toJob(&job), nil
}

// DownloadFile fetches the content of a file.
func (c *OpenAIClient) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files/"+fileID+"/content", nil)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to build download request", err, false, false)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "file download request failed", err, false, true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to read file content", err, false, true)
	}
	return data, nil
}

// do executes the request with auth and decodes a JSON response into out.
func (c *OpenAIClient) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return exception.NewBatchError(moduleName, "job API request failed", err, false, true)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return exception.NewBatchError(moduleName, "failed to decode job API response", err, false, false)
	}
	return nil
}

// apiError converts a non-2xx response into a BatchError. Server-side
// failures (5xx and 429) are marked retryable.
func (c *OpenAIClient) apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
	msg := fmt.Sprintf("job API returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	return exception.NewBatchError(moduleName, msg, nil, false, retryable)
}

func toJob(p *jobPayload) *Job {
	return &Job{
		ID:           p.ID,
		Status:       p.Status,
		OutputFileID: p.OutputFileID,
		ErrorFileID:  p.ErrorFileID,
	}
}
