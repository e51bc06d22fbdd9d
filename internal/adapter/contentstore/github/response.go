package github

// contentResponse is a file or directory item of the contents API.
// Content is base64 with embedded newlines; for files above the inline
// limit the API returns Encoding "none" and an empty Content.
type contentResponse struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

// blobResponse is a git blob of the git database API.
type blobResponse struct {
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

// writeRequest is the body of a create-or-update file call. SHA is the blob
// the caller expects to replace and is omitted when creating the file.
type writeRequest struct {
	Message   string        `json:"message"`
	Content   string        `json:"content"`
	SHA       string        `json:"sha,omitempty"`
	Branch    string        `json:"branch,omitempty"`
	Committer *apiCommitter `json:"committer,omitempty"`
}

type apiCommitter struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// writeResponse is the reply to a create-or-update file call.
type writeResponse struct {
	Content struct {
		SHA  string `json:"sha"`
		Path string `json:"path"`
	} `json:"content"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// apiError is the error body returned by the API.
type apiError struct {
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url"`
}
