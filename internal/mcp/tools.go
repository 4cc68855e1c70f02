package mcp

// SearchInput is the input schema for the oc_search tool.
type SearchInput struct {
	Query       string `json:"query" jsonschema:"the search query"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Mode        string `json:"mode,omitempty" jsonschema:"retrieval mode: hybrid, vector, or keyword (default hybrid)"`
	AggregateBy string `json:"aggregate_by,omitempty" jsonschema:"result granularity: content, doc, or folder (default content)"`
	DocType     string `json:"doc_type,omitempty" jsonschema:"restrict to doc or idea documents"`
}

// SearchResultOutput is one hit in the oc_search response.
type SearchResultOutput struct {
	Citation    string   `json:"citation"`
	RelPath     string   `json:"rel_path"`
	Folder      string   `json:"folder,omitempty"`
	HeadingPath []string `json:"heading_path,omitempty"`
	Text        string   `json:"text"`
	Score       float64  `json:"score"`
	MatchedBy   string   `json:"matched_by"`
	HitCount    int      `json:"hit_count"`
	DocCount    int      `json:"doc_count,omitempty"`
	EntryID     string   `json:"entry_id,omitempty"`
	EntryDate   string   `json:"entry_date,omitempty"`
}

// SearchOutput is the oc_search response.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
}

// IndexBuildInput is the input schema for the oc_index_build tool.
type IndexBuildInput struct {
	Scope string `json:"scope,omitempty" jsonschema:"restrict re-indexing to a folder path"`
	Force bool   `json:"force,omitempty" jsonschema:"re-embed everything, ignoring the content-hash diff"`
}

// IndexBuildOutput is the oc_index_build response.
type IndexBuildOutput struct {
	TotalChunks int    `json:"total_chunks"`
	LastUpdated string `json:"last_updated"`
	Model       string `json:"model"`
}

// IndexStatusInput is the input schema for the oc_index_status tool.
type IndexStatusInput struct{}

// IndexStatusOutput is the oc_index_status response.
type IndexStatusOutput struct {
	Exists      bool   `json:"exists"`
	TotalChunks int    `json:"total_chunks"`
	LastUpdated string `json:"last_updated,omitempty"`
	Model       string `json:"model,omitempty"`
}

// IndexCleanInput is the input schema for the oc_index_clean tool.
type IndexCleanInput struct{}

// IndexCleanOutput is the oc_index_clean response.
type IndexCleanOutput struct {
	Removed bool `json:"removed"`
}

// ListDocumentsInput is the input schema for the oc_list_documents tool.
type ListDocumentsInput struct {
	Scope string `json:"scope,omitempty" jsonschema:"restrict the listing to a folder path"`
}

// DocumentOutput is one document in the oc_list_documents response.
type DocumentOutput struct {
	Citation    string `json:"citation"`
	RelPath     string `json:"rel_path"`
	DocType     string `json:"doc_type"`
	Description string `json:"description,omitempty"`
	UpdatedAt   string `json:"updated_at"`
}

// ListDocumentsOutput is the oc_list_documents response.
type ListDocumentsOutput struct {
	Documents []DocumentOutput `json:"documents"`
}
