package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amitvarma/ai-loan-processor/internal/imaging"
	"github.com/amitvarma/ai-loan-processor/internal/models"
)

type fakeModel struct {
	calls    atomic.Int32
	respond  func(call int, body string) (status int, content string)
	requests []string
}

func newModelServer(t *testing.T, respond func(call int, body string) (int, string)) (*httptest.Server, *fakeModel) {
	t.Helper()
	fm := &fakeModel{respond: respond}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		call := int(fm.calls.Add(1))
		fm.requests = append(fm.requests, string(body))

		status, content := fm.respond(call, string(body))
		if status != http.StatusOK {
			w.WriteHeader(status)
			fmt.Fprintf(w, `{"error": {"message": "upstream failure", "type": "server_error"}}`)
			return
		}

		resp := map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": content},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(ts.Close)
	return ts, fm
}

func newTestClient(ts *httptest.Server, maxAttempts int) *Client {
	return NewClient(Config{
		APIKey:              "test-key",
		BaseURL:             ts.URL + "/v1",
		Model:               "gpt-4o",
		MaxTokens:           4096,
		Timeout:             5 * time.Second,
		RetryMaxAttempts:    maxAttempts,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     5 * time.Millisecond,
	}, zap.NewNop())
}

func testPage() imaging.Page {
	return imaging.Page{Data: []byte{0xff, 0xd8, 0xff}, MIMEType: "image/jpeg"}
}

func TestClient_Classify(t *testing.T) {
	t.Run("maps known tag", func(t *testing.T) {
		ts, _ := newModelServer(t, func(int, string) (int, string) {
			return http.StatusOK, "Payslip\n"
		})
		c := newTestClient(ts, 1)

		docType, err := c.Classify(context.Background(), testPage())

		require.NoError(t, err)
		assert.Equal(t, models.DocTypePayslip, docType)
		assert.True(t, docType.Known())
	})

	t.Run("preserves unrecognized tag verbatim", func(t *testing.T) {
		ts, _ := newModelServer(t, func(int, string) (int, string) {
			return http.StatusOK, "Utility Bill"
		})
		c := newTestClient(ts, 1)

		docType, err := c.Classify(context.Background(), testPage())

		require.NoError(t, err)
		assert.Equal(t, models.DocumentType("Utility Bill"), docType)
		assert.False(t, docType.Known())
	})

	t.Run("sends classification instruction and image", func(t *testing.T) {
		ts, fm := newModelServer(t, func(int, string) (int, string) {
			return http.StatusOK, "Other"
		})
		c := newTestClient(ts, 1)

		_, err := c.Classify(context.Background(), testPage())

		require.NoError(t, err)
		require.Len(t, fm.requests, 1)
		assert.Contains(t, fm.requests[0], "expert document classifier")
		assert.Contains(t, fm.requests[0], "data:image/jpeg;base64,")
	})
}

func TestClient_Extract(t *testing.T) {
	t.Run("uses tag-specific instruction with all pages", func(t *testing.T) {
		ts, fm := newModelServer(t, func(int, string) (int, string) {
			return http.StatusOK, `{"extracted_data": {}, "analysis": {}}`
		})
		c := newTestClient(ts, 1)

		pages := []imaging.Page{testPage(), testPage(), testPage()}
		raw, err := c.Extract(context.Background(), pages, models.DocTypePayslip)

		require.NoError(t, err)
		assert.Contains(t, raw, "extracted_data")
		require.Len(t, fm.requests, 1)
		assert.Contains(t, fm.requests[0], "Gross Income")
		assert.Equal(t, 3, strings.Count(fm.requests[0], "data:image/jpeg;base64,"))
	})

	t.Run("falls back to default instruction for unrecognized tag", func(t *testing.T) {
		ts, fm := newModelServer(t, func(int, string) (int, string) {
			return http.StatusOK, "{}"
		})
		c := newTestClient(ts, 1)

		_, err := c.Extract(context.Background(), []imaging.Page{testPage()}, models.DocumentType("Utility Bill"))

		require.NoError(t, err)
		assert.Contains(t, fm.requests[0], "personally identifiable information")
	})
}

func TestClient_Retry(t *testing.T) {
	t.Run("retries transient upstream failures", func(t *testing.T) {
		ts, fm := newModelServer(t, func(call int, _ string) (int, string) {
			if call == 1 {
				return http.StatusInternalServerError, ""
			}
			return http.StatusOK, "Payslip"
		})
		c := newTestClient(ts, 3)

		docType, err := c.Classify(context.Background(), testPage())

		require.NoError(t, err)
		assert.Equal(t, models.DocTypePayslip, docType)
		assert.Len(t, fm.requests, 2)
	})

	t.Run("surfaces service unavailable after retry budget", func(t *testing.T) {
		ts, fm := newModelServer(t, func(int, string) (int, string) {
			return http.StatusServiceUnavailable, ""
		})
		c := newTestClient(ts, 2)

		_, err := c.Classify(context.Background(), testPage())

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrServiceUnavailable)
		assert.Len(t, fm.requests, 2)
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		ts, fm := newModelServer(t, func(int, string) (int, string) {
			return http.StatusBadRequest, ""
		})
		c := newTestClient(ts, 3)

		_, err := c.Classify(context.Background(), testPage())

		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrServiceUnavailable)
		assert.Len(t, fm.requests, 1)
	})
}
