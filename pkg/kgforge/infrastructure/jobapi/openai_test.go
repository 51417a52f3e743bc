package jobapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/kgforge/kgforge/pkg/kgforge/core/config"
	"github.com/kgforge/kgforge/pkg/kgforge/infrastructure/jobapi"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/exception"
)

func newTestClient(t *testing.T, handler http.Handler) *jobapi.OpenAIClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.NewConfig()
	cfg.Kgforge.JobAPI.BaseURL = server.URL
	cfg.Kgforge.JobAPI.APIKey = "sk-test"

	client, err := jobapi.NewOpenAIClient(cfg)
	require.NoError(t, err)
	return client
}

func TestNewOpenAIClientRequiresAPIKey(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Kgforge.JobAPI.APIKey = ""

	_, err := jobapi.NewOpenAIClient(cfg)
	require.Error(t, err)
	assert.True(t, exception.IsBatchError(err))
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestUploadFileSendsMultipartWithBatchPurpose(t *testing.T) {
	var gotAuth, gotPurpose, gotFilename string
	var gotContent []byte

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/files", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotPurpose = r.FormValue("purpose")
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		gotFilename = header.Filename
		gotContent, err = io.ReadAll(file)
		require.NoError(t, err)

		json.NewEncoder(w).Encode(map[string]string{"id": "file_123"})
	}))

	fileID, err := client.UploadFile(context.Background(), "requests.jsonl", []byte(`{"custom_id":"doc-1"}`))
	require.NoError(t, err)

	assert.Equal(t, "file_123", fileID)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "batch", gotPurpose)
	assert.Equal(t, "requests.jsonl", gotFilename)
	assert.Equal(t, `{"custom_id":"doc-1"}`, string(gotContent))
}

func TestCreateJobPostsBatchRequest(t *testing.T) {
	var gotBody map[string]string

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/batches", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(map[string]string{
			"id":     "batch_abc123",
			"status": "validating",
		})
	}))

	job, err := client.CreateJob(context.Background(), "file_123", "/v1/chat/completions", "24h")
	require.NoError(t, err)

	assert.Equal(t, "batch_abc123", job.ID)
	assert.Equal(t, "validating", job.Status)
	assert.Equal(t, map[string]string{
		"input_file_id":     "file_123",
		"endpoint":          "/v1/chat/completions",
		"completion_window": "24h",
	}, gotBody)
}

func TestGetJobReturnsCurrentState(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/batches/batch_abc123", r.URL.Path)

		json.NewEncoder(w).Encode(map[string]string{
			"id":             "batch_abc123",
			"status":         "completed",
			"output_file_id": "file_out",
			"error_file_id":  "file_err",
		})
	}))

	job, err := client.GetJob(context.Background(), "batch_abc123")
	require.NoError(t, err)

	assert.Equal(t, jobapi.JobStatusCompleted, job.Status)
	assert.Equal(t, "file_out", job.OutputFileID)
	assert.Equal(t, "file_err", job.ErrorFileID)
}

func TestDownloadFileReturnsRawBytes(t *testing.T) {
	content := "{\"custom_id\":\"doc-1\"}\n{\"custom_id\":\"doc-2\"}\n"

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/files/file_out/content", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		io.WriteString(w, content)
	}))

	data, err := client.DownloadFile(context.Background(), "file_out")
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestServerErrorsAreRetryable(t *testing.T) {
	cases := []struct {
		name      string
		code      int
		retryable bool
	}{
		{"internal error", http.StatusInternalServerError, true},
		{"rate limited", http.StatusTooManyRequests, true},
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.code)
			}))

			_, err := client.GetJob(context.Background(), "batch_abc123")
			require.Error(t, err)

			var batchErr *exception.BatchError
			require.ErrorAs(t, err, &batchErr)
			assert.Equal(t, tc.retryable, batchErr.IsRetryable())
			assert.Contains(t, batchErr.Message, "nope")
		})
	}
}

func TestMalformedResponseBodyFails(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "{not json")
	}))

	_, err := client.GetJob(context.Background(), "batch_abc123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}
