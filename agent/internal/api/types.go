package api

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State        string `json:"state"`
	HostCount    int    `json:"host_count"`
	OKCount      int    `json:"ok_count"`
	WarnCount    int    `json:"warn_count"`
	CritCount    int    `json:"crit_count"`
	UnknownCount int    `json:"unknown_count"`
}

// HostResponse is one host entry in GET /api/v1/hosts or
// GET /api/v1/hosts/{hostname}.
type HostResponse struct {
	Hostname     string           `json:"hostname"`
	State        string           `json:"state"`
	StateCode    int              `json:"state_code"`
	Detail       string           `json:"detail"`
	PayloadBytes int              `json:"payload_bytes"`
	Error        string           `json:"error,omitempty"`
	Sources      []SourceResponse `json:"sources"`
	LastSeen     string           `json:"last_seen"` // RFC3339
}

// SourceResponse is one piggyback source record of a host.
type SourceResponse struct {
	Hostname  string `json:"hostname"`
	Processed bool   `json:"processed"`
	Reason    string `json:"reason"`
	State     string `json:"state"`
}

type errorResponse struct {
	Error string `json:"error"`
}
