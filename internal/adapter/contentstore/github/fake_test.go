package github

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"path"
	"strings"
	"sync"
	"testing"
)

// fakeGitHub is an in-memory stand-in for the parts of the contents and git
// blob APIs the store uses.
type fakeGitHub struct {
	t *testing.T

	mu        sync.Mutex
	files     map[string][]byte // repository path → content
	inlineMax int               // files larger than this are served with encoding "none"
	requests  []*http.Request
	puts      []writeRequest

	// failNext makes the next n requests answer 502.
	failNext int
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	return &fakeGitHub{t: t, files: map[string][]byte{}, inlineMax: 1 << 20}
}

func blobSHA(content []byte) string {
	sum := sha1.Sum(content)
	return hex.EncodeToString(sum[:])
}

func (f *fakeGitHub) put(p string, content []byte) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[p] = content
	return blobSHA(content)
}

func (f *fakeGitHub) get(p string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.files[p]
	return c, ok
}

func (f *fakeGitHub) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		f.t.Errorf("fake github: encode response: %v", err)
	}
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Clone(r.Context()))
	if f.failNext > 0 {
		f.failNext--
		f.mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	f.mu.Unlock()

	const contentsPrefix = "/repos/owner/repo/contents/"
	const blobsPrefix = "/repos/owner/repo/git/blobs/"

	switch {
	case strings.HasPrefix(r.URL.Path, blobsPrefix) && r.Method == http.MethodGet:
		f.serveBlob(w, strings.TrimPrefix(r.URL.Path, blobsPrefix))
	case strings.HasPrefix(r.URL.Path, contentsPrefix) && r.Method == http.MethodGet:
		f.serveContents(w, strings.TrimPrefix(r.URL.Path, contentsPrefix))
	case strings.HasPrefix(r.URL.Path, contentsPrefix) && r.Method == http.MethodPut:
		f.serveWrite(w, r, strings.TrimPrefix(r.URL.Path, contentsPrefix))
	default:
		f.writeJSON(w, http.StatusNotFound, apiError{Message: "Not Found"})
	}
}

func (f *fakeGitHub) serveContents(w http.ResponseWriter, p string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if content, ok := f.files[p]; ok {
		item := contentResponse{
			Type: "file", Name: path.Base(p), Path: p,
			SHA: blobSHA(content), Size: int64(len(content)),
		}
		if len(content) <= f.inlineMax {
			item.Encoding = "base64"
			item.Content = wrapBase64(content)
		} else {
			item.Encoding = "none"
		}
		f.writeJSON(w, http.StatusOK, item)
		return
	}

	dirs := map[string]bool{}
	for filePath := range f.files {
		rest, ok := strings.CutPrefix(filePath, p+"/")
		if !ok {
			continue
		}
		if name, _, found := strings.Cut(rest, "/"); found {
			dirs[name] = true
		}
	}
	if len(dirs) == 0 {
		f.writeJSON(w, http.StatusNotFound, apiError{Message: "Not Found"})
		return
	}

	items := []contentResponse{{Type: "file", Name: "README.md", Path: p + "/README.md"}}
	for name := range dirs {
		items = append(items, contentResponse{Type: "dir", Name: name, Path: p + "/" + name})
	}
	f.writeJSON(w, http.StatusOK, items)
}

func (f *fakeGitHub) serveBlob(w http.ResponseWriter, sha string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, content := range f.files {
		if blobSHA(content) == sha {
			f.writeJSON(w, http.StatusOK, blobResponse{
				SHA: sha, Size: int64(len(content)), Encoding: "base64", Content: wrapBase64(content),
			})
			return
		}
	}
	f.writeJSON(w, http.StatusNotFound, apiError{Message: "Not Found"})
}

func (f *fakeGitHub) serveWrite(w http.ResponseWriter, r *http.Request, p string) {
	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		f.writeJSON(w, http.StatusBadRequest, apiError{Message: "Problems parsing JSON"})
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		f.writeJSON(w, http.StatusBadRequest, apiError{Message: "content is not valid Base64"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, req)

	current, exists := f.files[p]
	switch {
	case exists && req.SHA == "":
		f.writeJSON(w, http.StatusUnprocessableEntity, apiError{Message: `Invalid request.\n\n"sha" wasn't supplied.`})
		return
	case exists && req.SHA != blobSHA(current):
		f.writeJSON(w, http.StatusConflict, apiError{Message: p + " does not match " + req.SHA})
		return
	case !exists && req.SHA != "":
		f.writeJSON(w, http.StatusConflict, apiError{Message: p + " does not match " + req.SHA})
		return
	}

	f.files[p] = content
	status := http.StatusOK
	if !exists {
		status = http.StatusCreated
	}

	var resp writeResponse
	resp.Content.SHA = blobSHA(content)
	resp.Content.Path = p
	resp.Commit.SHA = blobSHA([]byte(req.Message + resp.Content.SHA))
	f.writeJSON(w, status, resp)
}

// wrapBase64 encodes like the API does, with a newline every 60 characters.
func wrapBase64(content []byte) string {
	enc := base64.StdEncoding.EncodeToString(content)
	var b strings.Builder
	for len(enc) > 60 {
		b.WriteString(enc[:60])
		b.WriteByte('\n')
		enc = enc[60:]
	}
	b.WriteString(enc)
	return b.String()
}
