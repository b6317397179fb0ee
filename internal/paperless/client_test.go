package paperless

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/madeinoz67/bank-statement-separator/internal/common"
	"github.com/madeinoz67/bank-statement-separator/internal/models"
	"github.com/madeinoz67/bank-statement-separator/internal/ratelimit"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...ClientOption) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]ClientOption{WithLogger(arbor.NewLogger()), WithRateLimit(1000)}, opts...)
	return NewClient(server.URL, "test-token", opts...), server
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func TestTestConnection_Authenticated(t *testing.T) {
	var gotAuth string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, map[string]any{"count": 3, "results": []any{}})
	}))

	require.NoError(t, client.TestConnection(context.Background()))
	assert.Equal(t, "Token test-token", gotAuth)
}

func TestTestConnection_Unauthorized(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	err := client.TestConnection(context.Background())
	require.Error(t, err)

	var dmsErr *DmsError
	require.ErrorAs(t, err, &dmsErr)
	assert.Equal(t, http.StatusUnauthorized, dmsErr.StatusCode)
	assert.False(t, dmsErr.IsRetryable())
}

func TestDmsError_ServerErrorsAreRetryable(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	err := client.TestConnection(context.Background())
	require.Error(t, err)
	assert.True(t, ratelimit.IsRetryable(err))
}

func TestQueryDocuments_FiltersAndPDFDoubleCheck(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/tags/"):
			writeJSON(w, http.StatusOK, map[string]any{
				"count":   1,
				"results": []map[string]any{{"id": 12, "name": "unprocessed"}},
			})
		case strings.HasPrefix(r.URL.Path, "/api/documents/"):
			assert.Equal(t, "application/pdf", r.URL.Query().Get("mime_type"))
			assert.Equal(t, "12", r.URL.Query().Get("tags__id__in"))
			assert.Equal(t, "2024-01-01", r.URL.Query().Get("created__date__gte"))
			writeJSON(w, http.StatusOK, map[string]any{
				"count": 3,
				"results": []map[string]any{
					{"id": 1, "title": "bundle", "mime_type": "application/pdf"},
					{"id": 2, "title": "scan", "original_file_name": "scan.PDF"},
					{"id": 3, "title": "notes", "mime_type": "text/plain"},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	client, _ := newTestClient(t, handler)

	createdAfter, err := time.Parse("2006-01-02", "2024-01-01")
	require.NoError(t, err)
	result, err := client.QueryDocuments(context.Background(), models.DocumentQuery{
		Tags:         []string{"unprocessed"},
		CreatedAfter: createdAfter,
	})
	require.NoError(t, err)

	// The text/plain document is filtered client-side.
	assert.Equal(t, 2, result.Count)
	assert.Equal(t, 3, result.TotalAvailable)
}

func TestQueryDocuments_ResolvesCorrespondentAndDocumentType(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/correspondents/"):
			assert.Equal(t, "Westpac", r.URL.Query().Get("name__iexact"))
			writeJSON(w, http.StatusOK, map[string]any{
				"count":   1,
				"results": []map[string]any{{"id": 4, "name": "Westpac"}},
			})
		case strings.HasPrefix(r.URL.Path, "/api/document_types/"):
			writeJSON(w, http.StatusOK, map[string]any{
				"count":   1,
				"results": []map[string]any{{"id": 6, "name": "Bank Statement"}},
			})
		case strings.HasPrefix(r.URL.Path, "/api/documents/"):
			assert.Equal(t, "4", r.URL.Query().Get("correspondent"))
			assert.Equal(t, "6", r.URL.Query().Get("document_type"))
			writeJSON(w, http.StatusOK, map[string]any{
				"count": 1,
				"results": []map[string]any{
					{"id": 1, "title": "bundle", "mime_type": "application/pdf"},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	client, _ := newTestClient(t, handler)

	result, err := client.QueryDocuments(context.Background(), models.DocumentQuery{
		Correspondent: "Westpac",
		DocumentType:  "Bank Statement",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
}

func TestQueryDocuments_UnknownCorrespondentYieldsEmptyResult(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/documents/") {
			t.Error("listing must not run when the correspondent does not exist")
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": 0, "results": []any{}})
	})
	client, _ := newTestClient(t, handler)

	result, err := client.QueryDocuments(context.Background(), models.DocumentQuery{Correspondent: "Nobody"})
	require.NoError(t, err)
	assert.Zero(t, result.Count)
}

func TestQueryDocuments_UnknownTagYieldsEmptyResult(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"count": 0, "results": []any{}})
	}))

	result, err := client.QueryDocuments(context.Background(), models.DocumentQuery{Tags: []string{"nope"}})
	require.NoError(t, err)
	assert.Zero(t, result.Count)
}

func TestDownloadDocument_WritesPDF(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/documents/42/download/", r.URL.Path)
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.7 fake body"))
	}))

	dest := filepath.Join(t.TempDir(), "doc.pdf")
	result, err := client.DownloadDocument(context.Background(), 42, dest)
	require.NoError(t, err)

	assert.Equal(t, 42, result.DocumentID)
	assert.Equal(t, dest, result.Path)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 fake body", string(data))
}

func TestDownloadDocument_RejectsNonPDF(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>login</html>"))
	}))

	dest := filepath.Join(t.TempDir(), "doc.pdf")
	_, err := client.DownloadDocument(context.Background(), 42, dest)
	require.Error(t, err)
	assert.NoFileExists(t, dest)
}

func TestDownloadMultiple_BestEffort(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/13/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.7"))
	}))

	result, err := client.DownloadMultiple(context.Background(), []int{12, 13, 14}, t.TempDir())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Len(t, result.Downloads, 2)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 13, result.Errors[0].DocumentID)
}

func TestUploadDocument_QueuedTaskResponse(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/tags/" && r.Method == http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"count": 0, "results": []any{}})
		case r.URL.Path == "/api/tags/" && r.Method == http.MethodPost:
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			writeJSON(w, http.StatusCreated, map[string]any{"id": 9, "name": body["name"]})
		case r.URL.Path == "/api/correspondents/" && r.Method == http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{
				"count":   1,
				"results": []map[string]any{{"id": 4, "name": "Westpac"}},
			})
		case r.URL.Path == "/api/documents/post_document/":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "westpac-2819-2015-05-21", r.FormValue("title"))
			assert.Equal(t, "9", r.FormValue("tags"))
			assert.Equal(t, "4", r.FormValue("correspondent"))
			_, header, err := r.FormFile("document")
			require.NoError(t, err)
			assert.Equal(t, "seg.pdf", header.Filename)
			writeJSON(w, http.StatusOK, "abc-task-uuid")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	client, _ := newTestClient(t, handler)

	path := filepath.Join(t.TempDir(), "seg.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7"), 0644))

	outcome, err := client.UploadDocument(context.Background(), path, models.UploadRequest{
		Title:         "westpac-2819-2015-05-21",
		Tags:          []string{"statement"},
		Correspondent: "Westpac",
	})
	require.NoError(t, err)

	assert.True(t, outcome.Queued())
	assert.Equal(t, "abc-task-uuid", outcome.TaskID)
	assert.Zero(t, outcome.DocumentID)
}

func TestUploadDocument_SynchronousDocumentResponse(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 77, "title": "ingested"})
	}))

	path := filepath.Join(t.TempDir(), "seg.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7"), 0644))

	outcome, err := client.UploadDocument(context.Background(), path, models.UploadRequest{Title: "ingested"})
	require.NoError(t, err)

	assert.False(t, outcome.Queued())
	assert.Equal(t, 77, outcome.DocumentID)
}

func TestGetOrCreateRef_CachesLookups(t *testing.T) {
	lookups := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lookups++
		writeJSON(w, http.StatusOK, map[string]any{
			"count":   1,
			"results": []map[string]any{{"id": 5, "name": "statement"}},
		})
	}))

	for i := 0; i < 3; i++ {
		id, err := client.getOrCreateRef(context.Background(), "tags", "Statement")
		require.NoError(t, err)
		assert.Equal(t, 5, id)
	}
	assert.Equal(t, 1, lookups)
}

func TestApplyTagsToDocument_PreservesExistingTags(t *testing.T) {
	var patched []int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/documents/7/" && r.Method == http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"id": 7, "title": "doc", "tags": []int{1, 2}})
		case r.URL.Path == "/api/tags/":
			writeJSON(w, http.StatusOK, map[string]any{
				"count":   1,
				"results": []map[string]any{{"id": 8, "name": "processing:error"}},
			})
		case r.URL.Path == "/api/documents/7/" && r.Method == http.MethodPatch:
			var body map[string][]int
			json.NewDecoder(r.Body).Decode(&body)
			patched = body["tags"]
			writeJSON(w, http.StatusOK, map[string]any{"id": 7})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	client, _ := newTestClient(t, handler)

	require.NoError(t, client.ApplyTagsToDocument(context.Background(), 7, []string{"processing:error"}))
	assert.ElementsMatch(t, []int{1, 2, 8}, patched)
}

func TestMarkInputProcessed_AppliesAndRemovesTags(t *testing.T) {
	var patched []int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/documents/7/" && r.Method == http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"id": 7, "tags": []int{12}})
		case r.URL.Path == "/api/tags/" && r.Method == http.MethodGet:
			name := r.URL.Query().Get("name__iexact")
			id := map[string]int{"processed": 20, "unprocessed": 12}[name]
			if id == 0 {
				writeJSON(w, http.StatusOK, map[string]any{"count": 0, "results": []any{}})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"count":   1,
				"results": []map[string]any{{"id": id, "name": name}},
			})
		case r.URL.Path == "/api/documents/7/" && r.Method == http.MethodPatch:
			var body map[string][]int
			json.NewDecoder(r.Body).Decode(&body)
			patched = body["tags"]
			writeJSON(w, http.StatusOK, map[string]any{"id": 7})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	input := common.PaperlessInputConfig{
		TaggingEnabled:       true,
		ProcessedTag:         "processed",
		RemoveUnprocessedTag: true,
		UnprocessedTagName:   "unprocessed",
	}
	client, _ := newTestClient(t, handler, WithInputPolicy(input))

	result, err := client.MarkInputProcessed(context.Background(), 7)
	require.NoError(t, err)

	assert.False(t, result.Skipped)
	assert.Equal(t, []string{"processed"}, result.AppliedTags)
	assert.Equal(t, []string{"unprocessed"}, result.RemovedTags)
	assert.Equal(t, []int{20}, patched)
}

func TestMarkInputProcessed_DisabledSkips(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected when tagging is disabled")
	}))

	result, err := client.MarkInputProcessed(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
}

