package model

// AppError is the structured payload carried by every error this module
// surfaces. Stage names the pipeline step that failed ("decode", "ingest",
// "compose", "fetch_upstream", ...).
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   string `json:"stage"`

	URL     string `json:"url,omitempty"`
	Line    int    `json:"line,omitempty"`    // 1-based; 0 means "not set"
	Snippet string `json:"snippet,omitempty"` // <= 200 chars
	Hint    string `json:"hint,omitempty"`
}
