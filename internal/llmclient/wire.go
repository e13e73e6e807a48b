package llmclient

// Message is one turn of the internal completion request shape.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the mode-agnostic request callers build. Direct mode
// sends it as-is; adapter mode serializes it into the intermediary's prompt
// field.
type CompletionRequest struct {
	Messages []Message `json:"messages"`
}

// ContentBlock is one block of a normalized completion response.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CompletionResponse is the mode-agnostic response shape. Adapter-mode
// responses are normalized into it so callers never see the wire difference.
type CompletionResponse struct {
	Content []ContentBlock `json:"content"`
}

// Text returns the first text block, or empty when the response has none.
func (r CompletionResponse) Text() string {
	for _, block := range r.Content {
		if block.Type == "text" {
			return block.Text
		}
	}
	return ""
}

// adapterRequest is the intermediary's wire shape: submission metadata plus
// the JSON serialization of the original request in the prompt field.
type adapterRequest struct {
	Repo   string `json:"repo"`
	Branch string `json:"branch"`
	Author string `json:"author"`
	Commit string `json:"commit"`
	URL    string `json:"url"`
	Prompt string `json:"prompt"`
}

// adapterResponse is what the intermediary answers with; only the summary
// text is extracted.
type adapterResponse struct {
	Status  string `json:"status"`
	Metrics struct {
		SummaryText string `json:"summary_text"`
	} `json:"metrics"`
}

type tokenRequest struct {
	Subject string `json:"subject"`
}

type tokenResponse struct {
	Token string `json:"token"`
}
