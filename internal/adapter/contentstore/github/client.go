// Package github stores exported gloss documents in a GitHub repository
// through the contents API. Each language owns one file,
// <root>/<code>/glosses.json, and the blob SHA of that file is the document
// revision used for conditional writes.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/heartmarshall/gloss-export/internal/config"
	"github.com/heartmarshall/gloss-export/internal/domain"
)

// DocumentFile is the name of the per-language document file.
const DocumentFile = "glosses.json"

const defaultRetryDelay = 500 * time.Millisecond

// Store reads and conditionally writes gloss documents.
type Store struct {
	baseURL    string
	owner      string
	repo       string
	branch     string
	root       string
	token      string
	apiVersion string
	committer  *apiCommitter
	retryDelay time.Duration
	httpClient *http.Client
	log        *slog.Logger
}

// NewStore creates a Store from the content store configuration. Outgoing
// requests are traced through the otelhttp transport.
func NewStore(cfg config.ContentStoreConfig, logger *slog.Logger) *Store {
	s := &Store{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		owner:      cfg.Owner,
		repo:       cfg.Repo,
		branch:     cfg.Branch,
		root:       strings.Trim(cfg.Root, "/"),
		token:      cfg.Token,
		apiVersion: cfg.APIVersion,
		retryDelay: defaultRetryDelay,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: logger.With("adapter", "github"),
	}
	if cfg.HasCommitter() {
		s.committer = &apiCommitter{Name: cfg.CommitterName, Email: cfg.CommitterEmail}
	}
	return s
}

// DocumentPath returns the repository path of the language's document.
func (s *Store) DocumentPath(code string) string {
	return path.Join(s.root, code, DocumentFile)
}

// List returns a reference per language folder under the content root. The
// document inside a folder may still be missing. A missing root yields an
// empty listing.
func (s *Store) List(ctx context.Context) ([]domain.DocumentRef, error) {
	resp, err := s.do(ctx, http.MethodGet, s.contentsURL(s.root, true), nil)
	if err != nil {
		return nil, fmt.Errorf("github: list %s: %w", s.root, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return []domain.DocumentRef{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github: list %s: %w", s.root, statusError(resp))
	}

	var items []contentResponse
	if err := decodeJSON(resp.Body, &items); err != nil {
		return nil, fmt.Errorf("github: list %s: %w", s.root, err)
	}

	entries := make([]domain.DocumentRef, 0, len(items))
	for _, item := range items {
		if item.Type != "dir" {
			continue
		}
		entries = append(entries, domain.DocumentRef{Language: item.Name, Path: path.Join(item.Path, DocumentFile)})
	}

	s.log.DebugContext(ctx, "github list", slog.String("root", s.root), slog.Int("languages", len(entries)))
	return entries, nil
}

// Read fetches the document of a language with its revision. A document that
// does not exist yet is returned empty with the empty revision.
func (s *Store) Read(ctx context.Context, code string) (domain.Document, domain.Revision, error) {
	if err := validateCode(code); err != nil {
		return domain.Document{}, "", err
	}

	resp, err := s.do(ctx, http.MethodGet, s.contentsURL(s.DocumentPath(code), true), nil)
	if err != nil {
		return domain.Document{}, "", fmt.Errorf("github: read %s: %w", code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		s.log.DebugContext(ctx, "github read: no document yet", slog.String("language", code))
		return domain.NewDocument(code), "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Document{}, "", fmt.Errorf("github: read %s: %w", code, statusError(resp))
	}

	var item contentResponse
	if err := decodeJSON(resp.Body, &item); err != nil {
		return domain.Document{}, "", fmt.Errorf("github: read %s: %w", code, err)
	}
	if item.Type != "file" {
		return domain.Document{}, "", fmt.Errorf("github: read %s: %w: %s is a %s", code, domain.ErrDecode, item.Path, item.Type)
	}
	if item.SHA == "" {
		return domain.Document{}, "", fmt.Errorf("github: read %s: %w: missing sha", code, domain.ErrDecode)
	}

	var raw []byte
	switch item.Encoding {
	case "base64":
		raw, err = decodeBase64(item.Content)
	case "none", "":
		raw, err = s.readBlob(ctx, item.SHA)
	default:
		err = fmt.Errorf("%w: unsupported encoding %q", domain.ErrDecode, item.Encoding)
	}
	if err != nil {
		return domain.Document{}, "", fmt.Errorf("github: read %s: %w", code, err)
	}

	doc, err := domain.DecodeDocument(raw, code)
	if err != nil {
		return domain.Document{}, "", fmt.Errorf("github: read %s: %w", code, err)
	}

	s.log.DebugContext(ctx, "github read",
		slog.String("language", code),
		slog.String("revision", item.SHA),
		slog.Int("books", len(doc.Books)),
	)
	return doc, domain.Revision(item.SHA), nil
}

// readBlob fetches file content through the git blob API, which has no
// inline size limit.
func (s *Store) readBlob(ctx context.Context, sha string) ([]byte, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/git/blobs/%s", s.baseURL, url.PathEscape(s.owner), url.PathEscape(s.repo), url.PathEscape(sha))

	resp, err := s.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w", sha, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blob %s: %w", sha, statusError(resp))
	}

	var blob blobResponse
	if err := decodeJSON(resp.Body, &blob); err != nil {
		return nil, fmt.Errorf("blob %s: %w", sha, err)
	}
	if blob.Encoding != "base64" {
		return nil, fmt.Errorf("blob %s: %w: unsupported encoding %q", sha, domain.ErrDecode, blob.Encoding)
	}
	return decodeBase64(blob.Content)
}

// Write stores the document only if the remote revision still equals
// expected. The empty revision creates the file. A stale revision yields a
// *domain.ConflictError. Returns the new revision.
func (s *Store) Write(ctx context.Context, code string, doc domain.Document, expected domain.Revision, message string) (domain.Revision, error) {
	if err := validateCode(code); err != nil {
		return "", err
	}

	data, err := domain.EncodeDocument(doc)
	if err != nil {
		return "", fmt.Errorf("github: write %s: %w", code, err)
	}

	body, err := json.Marshal(writeRequest{
		Message:   message,
		Content:   base64.StdEncoding.EncodeToString(data),
		SHA:       string(expected),
		Branch:    s.branch,
		Committer: s.committer,
	})
	if err != nil {
		return "", fmt.Errorf("github: write %s: encode request: %w", code, err)
	}

	resp, err := s.do(ctx, http.MethodPut, s.contentsURL(s.DocumentPath(code), false), body)
	if err != nil {
		return "", fmt.Errorf("github: write %s: %w", code, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict:
		return "", &domain.ConflictError{Language: code, Expected: expected, Reason: readMessage(resp)}
	case http.StatusUnprocessableEntity:
		msg := readMessage(resp)
		if strings.Contains(strings.ToLower(msg), "sha") {
			return "", &domain.ConflictError{Language: code, Expected: expected, Reason: msg}
		}
		return "", fmt.Errorf("github: write %s: unexpected status %d: %s", code, resp.StatusCode, msg)
	default:
		return "", fmt.Errorf("github: write %s: %w", code, statusError(resp))
	}

	var out writeResponse
	if err := decodeJSON(resp.Body, &out); err != nil {
		return "", fmt.Errorf("github: write %s: %w", code, err)
	}
	if out.Content.SHA == "" {
		return "", fmt.Errorf("github: write %s: %w: missing sha", code, domain.ErrDecode)
	}

	s.log.DebugContext(ctx, "github write",
		slog.String("language", code),
		slog.String("previous", string(expected)),
		slog.String("revision", out.Content.SHA),
		slog.String("commit", out.Commit.SHA),
	)
	return domain.Revision(out.Content.SHA), nil
}

// contentsURL builds a contents API URL. Reads are pinned to the branch.
func (s *Store) contentsURL(p string, withRef bool) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		s.baseURL, url.PathEscape(s.owner), url.PathEscape(s.repo), strings.Join(segments, "/"))
	if withRef && s.branch != "" {
		u += "?ref=" + url.QueryEscape(s.branch)
	}
	return u
}

func (s *Store) do(ctx context.Context, method, u string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", s.apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return s.doWithRetry(ctx, req)
}

// doWithRetry executes the request with a single retry on 5xx or network errors.
// A replayed PUT is still conditional on the sha, so it cannot overwrite a
// newer document.
func (s *Store) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := s.httpClient.Do(req)

	shouldRetry := err != nil || (resp != nil && resp.StatusCode >= 500)
	if !shouldRetry {
		return resp, err
	}

	// Don't retry if context is already cancelled.
	if ctx.Err() != nil {
		return resp, err
	}

	reason := "network error"
	if err == nil && resp != nil {
		reason = fmt.Sprintf("status %d", resp.StatusCode)
	}
	s.log.WarnContext(ctx, "github retry",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.String("reason", reason),
	)

	// Close body from the failed attempt before retrying.
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	timer := time.NewTimer(s.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replay request body: %w", err)
		}
		retry.Body = body
	}

	return s.httpClient.Do(retry)
}

// validateCode rejects codes that would escape the language folder.
func validateCode(code string) error {
	if code == "" || strings.ContainsAny(code, `/\`) || code == "." || code == ".." {
		return domain.NewValidationError("language", fmt.Sprintf("invalid language code %q", code))
	}
	return nil
}

func decodeJSON(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	return nil
}

func decodeBase64(content string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("%w: content: %v", domain.ErrDecode, err)
	}
	return data, nil
}

// readMessage returns the API error message of the response, or its status
// text when the body is not an API error.
func readMessage(resp *http.Response) string {
	var apiErr apiError
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr); err != nil || apiErr.Message == "" {
		return http.StatusText(resp.StatusCode)
	}
	return apiErr.Message
}

// errUnexpectedStatus marks any API response the store does not handle.
var errUnexpectedStatus = errors.New("unexpected status")

func statusError(resp *http.Response) error {
	return fmt.Errorf("%w %d: %s", errUnexpectedStatus, resp.StatusCode, readMessage(resp))
}
