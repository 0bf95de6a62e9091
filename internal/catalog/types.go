package catalog

import "time"

// ServerConfig locates the automation server. Prefix is prepended to short
// variable ids when building full ids.
type ServerConfig struct {
	URL       string    `json:"url"`
	Prefix    string    `json:"prefix"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Variable is one discovered, addressable server variable.
type Variable struct {
	NodeID     string `json:"node_id"`
	BrowseName string `json:"browse_name"`
	ParentID   string `json:"parent_id,omitempty"`
	DataType   string `json:"data_type"`
	ValueRank  int    `json:"value_rank"`
}

// Selection is a regex filter plus the variable ids it was used to pick.
// It backs both the tracking config and the designer selection config.
type Selection struct {
	Pattern   string    `json:"regex_pattern"`
	Nodes     []string  `json:"nodes"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// TrackedVariable is a variable sampled by the change-detection monitor.
type TrackedVariable struct {
	ID           string `json:"id"`
	DeclaredType string `json:"declared_type"`
}
