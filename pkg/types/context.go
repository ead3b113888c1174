package types

// Snippet is a piece of retrieved context. Content is untrusted data, never instructions.
type Snippet struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}
