// -----------------------------------------------------------------------
// Paperless-ngx Client - document query, download, upload and tagging
// -----------------------------------------------------------------------

package paperless

import (
	"bytes"
	"context"
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
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/madeinoz67/bank-statement-separator/internal/common"
	"github.com/madeinoz67/bank-statement-separator/internal/interfaces"
	"github.com/madeinoz67/bank-statement-separator/internal/models"
)

const (
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 5

	// DefaultMaxDocuments caps query result sizes.
	DefaultMaxDocuments = 50

	pdfMimeType = "application/pdf"
)

// Client is a paperless-ngx REST API client. It implements the workflow's
// DocumentClient contract with token authentication, name-to-ID reference
// resolution and client-side rate limiting.
type Client struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	logger       arbor.ILogger
	limiter      *rate.Limiter
	maxDocuments int
	input        common.PaperlessInputConfig

	// refCache memoizes resolved reference IDs, keyed by kind and
	// lowercased name. Guarded by refMu: get-or-create must be
	// single-writer per name so concurrent workers cannot race creation.
	refMu    sync.Mutex
	refCache map[string]int
}

var _ interfaces.DocumentClient = (*Client)(nil)

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithMaxDocuments caps how many documents a query may return.
func WithMaxDocuments(max int) ClientOption {
	return func(c *Client) {
		if max > 0 {
			c.maxDocuments = max
		}
	}
}

// WithInputPolicy sets the post-processing tag policy for input documents.
func WithInputPolicy(input common.PaperlessInputConfig) ClientOption {
	return func(c *Client) {
		c.input = input
	}
}

// NewClient creates a paperless-ngx client.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:      rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		maxDocuments: DefaultMaxDocuments,
		refCache:     make(map[string]int),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// listResponse is the paperless paginated envelope.
type listResponse struct {
	Count   int             `json:"count"`
	Results json.RawMessage `json:"results"`
}

// namedRef is a tag, correspondent, document type or storage path.
type namedRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// TestConnection performs an authenticated single-document listing.
func (c *Client) TestConnection(ctx context.Context) error {
	params := url.Values{}
	params.Set("page_size", "1")

	var resp listResponse
	if err := c.get(ctx, "/api/documents/", params, &resp); err != nil {
		return err
	}

	if c.logger != nil {
		c.logger.Debug().Int("documents", resp.Count).Msg("Paperless connection verified")
	}
	return nil
}

// QueryDocuments lists PDF documents matching the filters. Unknown tag,
// correspondent or document type names yield an empty result rather than
// an error.
func (c *Client) QueryDocuments(ctx context.Context, query models.DocumentQuery) (*models.QueryResult, error) {
	params := url.Values{}
	params.Set("mime_type", pdfMimeType)

	pageSize := query.PageSize
	if pageSize <= 0 || pageSize > c.maxDocuments {
		pageSize = c.maxDocuments
	}
	params.Set("page_size", strconv.Itoa(pageSize))

	if len(query.Tags) > 0 {
		ids, err := c.lookupTagIDs(ctx, query.Tags)
		if err != nil {
			return nil, err
		}
		if len(ids) < len(query.Tags) {
			// A named tag does not exist, so nothing can match it.
			return &models.QueryResult{}, nil
		}
		params.Set("tags__id__in", joinInts(ids))
	}
	if query.Correspondent != "" {
		id, found, err := c.lookupRef(ctx, "correspondents", query.Correspondent)
		if err != nil {
			return nil, err
		}
		if !found {
			return &models.QueryResult{}, nil
		}
		params.Set("correspondent", strconv.Itoa(id))
	}
	if query.DocumentType != "" {
		id, found, err := c.lookupRef(ctx, "document_types", query.DocumentType)
		if err != nil {
			return nil, err
		}
		if !found {
			return &models.QueryResult{}, nil
		}
		params.Set("document_type", strconv.Itoa(id))
	}
	if !query.CreatedAfter.IsZero() {
		params.Set("created__date__gte", query.CreatedAfter.Format("2006-01-02"))
	}
	if !query.CreatedBefore.IsZero() {
		params.Set("created__date__lte", query.CreatedBefore.Format("2006-01-02"))
	}

	var resp listResponse
	if err := c.get(ctx, "/api/documents/", params, &resp); err != nil {
		return nil, err
	}

	var docs []models.DMSDocument
	if len(resp.Results) > 0 {
		if err := json.Unmarshal(resp.Results, &docs); err != nil {
			return nil, newResponseError("query documents", err)
		}
	}

	// The server-side mime_type filter is advisory on some versions;
	// keep only documents that are actually PDFs.
	filtered := docs[:0]
	for _, doc := range docs {
		if isPDFDocument(doc) {
			filtered = append(filtered, doc)
		}
	}

	return &models.QueryResult{
		Count:          len(filtered),
		Documents:      filtered,
		TotalAvailable: resp.Count,
	}, nil
}

// DownloadDocument streams one document to destPath. The response must be
// a PDF; the file lands atomically via a temp file rename.
func (c *Client) DownloadDocument(ctx context.Context, documentID int, destPath string) (*models.DownloadResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, newTransportError("download", err)
	}

	reqURL := fmt.Sprintf("%s/api/documents/%d/download/", c.baseURL, documentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, newResponseError("download", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newTransportError("download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, newStatusError("download", resp.StatusCode, string(body))
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, pdfMimeType) {
		return nil, newResponseError("download", fmt.Errorf("document %d served content type %q, expected PDF", documentID, contentType))
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return nil, newResponseError("download", err)
	}
	tempFile, err := os.CreateTemp(filepath.Dir(destPath), ".download_*.pdf")
	if err != nil {
		return nil, newResponseError("download", err)
	}
	tempPath := tempFile.Name()

	size, err := io.Copy(tempFile, resp.Body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempPath)
		return nil, newTransportError("download", err)
	}

	if err := os.Rename(tempPath, destPath); err != nil {
		os.Remove(tempPath)
		return nil, newResponseError("download", err)
	}

	if c.logger != nil {
		c.logger.Debug().
			Int("document_id", documentID).
			Int64("bytes", size).
			Str("path", destPath).
			Msg("Downloaded document")
	}

	return &models.DownloadResult{
		DocumentID:  documentID,
		Path:        destPath,
		SizeBytes:   size,
		ContentType: contentType,
	}, nil
}

// DownloadMultiple downloads documents into dir, best-effort. Failures are
// collected per document; successful downloads are always reported.
func (c *Client) DownloadMultiple(ctx context.Context, documentIDs []int, dir string) (*models.BatchDownloadResult, error) {
	result := &models.BatchDownloadResult{Success: true}

	for _, id := range documentIDs {
		destPath := filepath.Join(dir, fmt.Sprintf("document_%d.pdf", id))
		download, err := c.DownloadDocument(ctx, id, destPath)
		if err != nil {
			result.Success = false
			result.Errors = append(result.Errors, models.BatchDownloadError{
				DocumentID: id,
				Error:      err.Error(),
			})
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			continue
		}
		result.Downloads = append(result.Downloads, *download)
	}

	return result, nil
}

// UploadDocument posts the file multipart with all named references
// resolved to IDs (creating them when absent). Paperless answers either
// with a queued task UUID or, on synchronous ingest, the document itself.
func (c *Client) UploadDocument(ctx context.Context, path string, req models.UploadRequest) (*models.UploadOutcome, error) {
	refs, err := c.resolveUploadRefs(ctx, req)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, newResponseError("upload", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if req.Title != "" {
		writer.WriteField("title", req.Title)
	}
	for _, tagID := range refs.tags {
		writer.WriteField("tags", strconv.Itoa(tagID))
	}
	if refs.correspondent != 0 {
		writer.WriteField("correspondent", strconv.Itoa(refs.correspondent))
	}
	if refs.documentType != 0 {
		writer.WriteField("document_type", strconv.Itoa(refs.documentType))
	}
	if refs.storagePath != 0 {
		writer.WriteField("storage_path", strconv.Itoa(refs.storagePath))
	}

	part, err := writer.CreateFormFile("document", filepath.Base(path))
	if err != nil {
		return nil, newResponseError("upload", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, newResponseError("upload", err)
	}
	if err := writer.Close(); err != nil {
		return nil, newResponseError("upload", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, newTransportError("upload", err)
	}

	reqURL := c.baseURL + "/api/documents/post_document/"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &body)
	if err != nil {
		return nil, newResponseError("upload", err)
	}
	httpReq.Header.Set("Authorization", "Token "+c.token)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, newTransportError("upload", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newTransportError("upload", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, newStatusError("upload", resp.StatusCode, string(respBody))
	}

	outcome, err := parseUploadResponse(respBody)
	if err != nil {
		return nil, err
	}
	outcome.Title = req.Title

	if c.logger != nil {
		c.logger.Info().
			Str("title", req.Title).
			Bool("queued", outcome.Queued()).
			Msg("Uploaded document")
	}
	return outcome, nil
}

// parseUploadResponse handles both upload response shapes: a bare JSON
// string holding the consume task UUID, or a document object.
func parseUploadResponse(body []byte) (*models.UploadOutcome, error) {
	trimmed := bytes.TrimSpace(body)

	var taskID string
	if err := json.Unmarshal(trimmed, &taskID); err == nil {
		return &models.UploadOutcome{TaskID: taskID}, nil
	}

	var doc struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(trimmed, &doc); err == nil && doc.ID != 0 {
		return &models.UploadOutcome{DocumentID: doc.ID}, nil
	}

	return nil, newResponseError("upload", fmt.Errorf("unrecognized upload response: %s", trimmed))
}

// ApplyTagsToDocument merges the named tags into the document's existing
// tag set. Existing tags are always preserved.
func (c *Client) ApplyTagsToDocument(ctx context.Context, documentID int, tags []string) error {
	doc, err := c.getDocument(ctx, documentID)
	if err != nil {
		return err
	}

	merged := make(map[int]bool)
	for _, id := range doc.Tags {
		merged[id] = true
	}
	for _, name := range tags {
		id, err := c.getOrCreateRef(ctx, "tags", name)
		if err != nil {
			return err
		}
		merged[id] = true
	}

	return c.patchDocumentTags(ctx, documentID, setToSlice(merged))
}

// MarkInputProcessed applies the configured post-processing tag policy to
// an input document pulled from the DMS.
func (c *Client) MarkInputProcessed(ctx context.Context, documentID int) (*models.MarkResult, error) {
	if !c.input.TaggingEnabled {
		return &models.MarkResult{Skipped: true}, nil
	}

	doc, err := c.getDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	tagSet := make(map[int]bool)
	for _, id := range doc.Tags {
		tagSet[id] = true
	}

	result := &models.MarkResult{}

	if c.input.ProcessedTag != "" {
		id, err := c.getOrCreateRef(ctx, "tags", c.input.ProcessedTag)
		if err != nil {
			return nil, err
		}
		if !tagSet[id] {
			tagSet[id] = true
			result.AppliedTags = append(result.AppliedTags, c.input.ProcessedTag)
		}
	}

	for _, removal := range c.removableTags() {
		id, ok, err := c.lookupRef(ctx, "tags", removal)
		if err != nil {
			return nil, err
		}
		if ok && tagSet[id] {
			delete(tagSet, id)
			result.RemovedTags = append(result.RemovedTags, removal)
		}
	}

	if len(result.AppliedTags) == 0 && len(result.RemovedTags) == 0 {
		result.Skipped = true
		return result, nil
	}

	if err := c.patchDocumentTags(ctx, documentID, setToSlice(tagSet)); err != nil {
		return nil, err
	}
	return result, nil
}

// removableTags lists tag names the policy strips after processing.
func (c *Client) removableTags() []string {
	var tags []string
	if c.input.RemoveUnprocessedTag && c.input.UnprocessedTagName != "" {
		tags = append(tags, c.input.UnprocessedTagName)
	}
	if c.input.ProcessingTag != "" {
		tags = append(tags, c.input.ProcessingTag)
	}
	return tags
}

// uploadRefs holds the resolved reference IDs for an upload.
type uploadRefs struct {
	tags          []int
	correspondent int
	documentType  int
	storagePath   int
}

func (c *Client) resolveUploadRefs(ctx context.Context, req models.UploadRequest) (*uploadRefs, error) {
	refs := &uploadRefs{}

	for _, name := range req.Tags {
		id, err := c.getOrCreateRef(ctx, "tags", name)
		if err != nil {
			return nil, err
		}
		refs.tags = append(refs.tags, id)
	}
	if req.Correspondent != "" {
		id, err := c.getOrCreateRef(ctx, "correspondents", req.Correspondent)
		if err != nil {
			return nil, err
		}
		refs.correspondent = id
	}
	if req.DocumentType != "" {
		id, err := c.getOrCreateRef(ctx, "document_types", req.DocumentType)
		if err != nil {
			return nil, err
		}
		refs.documentType = id
	}
	if req.StoragePath != "" {
		id, err := c.getOrCreateRef(ctx, "storage_paths", req.StoragePath)
		if err != nil {
			return nil, err
		}
		refs.storagePath = id
	}

	return refs, nil
}

// getOrCreateRef resolves a reference name to its ID, creating the
// reference when it does not exist. Resolution is serialized so two
// concurrent workers never create the same name twice.
func (c *Client) getOrCreateRef(ctx context.Context, kind, name string) (int, error) {
	c.refMu.Lock()
	defer c.refMu.Unlock()

	cacheKey := kind + "\x00" + strings.ToLower(name)
	if id, ok := c.refCache[cacheKey]; ok {
		return id, nil
	}

	id, found, err := c.lookupRefLocked(ctx, kind, name)
	if err != nil {
		return 0, err
	}
	if !found {
		id, err = c.createRef(ctx, kind, name)
		if err != nil {
			return 0, err
		}
	}

	c.refCache[cacheKey] = id
	return id, nil
}

// lookupRef resolves a reference name without creating it.
func (c *Client) lookupRef(ctx context.Context, kind, name string) (int, bool, error) {
	c.refMu.Lock()
	defer c.refMu.Unlock()

	cacheKey := kind + "\x00" + strings.ToLower(name)
	if id, ok := c.refCache[cacheKey]; ok {
		return id, true, nil
	}

	id, found, err := c.lookupRefLocked(ctx, kind, name)
	if err != nil {
		return 0, false, err
	}
	if found {
		c.refCache[cacheKey] = id
	}
	return id, found, nil
}

func (c *Client) lookupRefLocked(ctx context.Context, kind, name string) (int, bool, error) {
	params := url.Values{}
	params.Set("name__iexact", name)

	var resp listResponse
	if err := c.get(ctx, "/api/"+kind+"/", params, &resp); err != nil {
		return 0, false, err
	}

	var refs []namedRef
	if len(resp.Results) > 0 {
		if err := json.Unmarshal(resp.Results, &refs); err != nil {
			return 0, false, newResponseError("lookup "+kind, err)
		}
	}
	if len(refs) == 0 {
		return 0, false, nil
	}
	return refs[0].ID, true, nil
}

func (c *Client) createRef(ctx context.Context, kind, name string) (int, error) {
	payload, _ := json.Marshal(map[string]string{"name": name})

	var ref namedRef
	if err := c.send(ctx, http.MethodPost, "/api/"+kind+"/", payload, &ref); err != nil {
		return 0, err
	}

	if c.logger != nil {
		c.logger.Debug().Str("kind", kind).Str("name", name).Int("id", ref.ID).Msg("Created reference")
	}
	return ref.ID, nil
}

func (c *Client) lookupTagIDs(ctx context.Context, names []string) ([]int, error) {
	var ids []int
	for _, name := range names {
		id, found, err := c.lookupRef(ctx, "tags", name)
		if err != nil {
			return nil, err
		}
		if found {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *Client) getDocument(ctx context.Context, documentID int) (*models.DMSDocument, error) {
	var doc models.DMSDocument
	if err := c.get(ctx, fmt.Sprintf("/api/documents/%d/", documentID), nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) patchDocumentTags(ctx context.Context, documentID int, tagIDs []int) error {
	payload, _ := json.Marshal(map[string][]int{"tags": tagIDs})
	return c.send(ctx, http.MethodPatch, fmt.Sprintf("/api/documents/%d/", documentID), payload, nil)
}

// get performs an authenticated GET request.
func (c *Client) get(ctx context.Context, path string, params url.Values, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return newTransportError("get "+path, err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return newResponseError("get "+path, err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")

	if c.logger != nil {
		c.logger.Debug().Str("url", c.baseURL+path).Msg("Paperless API request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newTransportError("get "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return newStatusError("get "+path, resp.StatusCode, string(body))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return newResponseError("get "+path, err)
		}
	}
	return nil
}

// send performs an authenticated JSON POST or PATCH request.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return newTransportError(method+" "+path, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return newResponseError(method+" "+path, err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newTransportError(method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return newStatusError(method+" "+path, resp.StatusCode, string(body))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return newResponseError(method+" "+path, err)
		}
	}
	return nil
}

func isPDFDocument(doc models.DMSDocument) bool {
	if doc.MimeType == pdfMimeType || doc.ContentType == pdfMimeType {
		return true
	}
	return strings.HasSuffix(strings.ToLower(doc.OriginalName), ".pdf")
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func setToSlice(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
