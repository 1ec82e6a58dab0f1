package rpc

// Message shapes mirror the collection service's RPC surface. Field layouts
// are owned by the collection service's existing schema; only the shape the
// agent's behavior depends on is reproduced here.

// LogLineMsg is one LineEvent on the wire.
type LogLineMsg struct {
	Label     string `json:"label"`
	Line      string `json:"line"`
	Timestamp int64  `json:"timestamp"`
}

// BatchMsg is one Batch on the wire, fed into LogService.Send.
type BatchMsg struct {
	BatchID string       `json:"batch_id"`
	SendAt  int64        `json:"send_at"`
	Logs    []LogLineMsg `json:"logs"`
}

// Empty is LogService.Send's terminal reply.
type Empty struct{}

// RegisterRequest is AuthService.Register's argument. AgentUUID is empty on
// a true first run and set when re-provisioning after a failed Refresh.
type RegisterRequest struct {
	ProjectKey string `json:"project_key"`
	AgentUUID  string `json:"agent_uuid,omitempty"`
}

// RegisterResponse carries the freshly issued Credential Pair and the
// server-assigned agent UUID.
type RegisterResponse struct {
	AgentUUID    string `json:"agent_uuid"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshRequest is AuthService.Refresh's argument.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshResponse carries a new access token and, optionally, a rotated
// refresh token (the server may return either shape; RefreshToken is empty
// when it chooses not to rotate).
type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// HeartbeatRequest is HealthService.Heartbeat's argument.
type HeartbeatRequest struct {
	Timestamp     int64   `json:"timestamp"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// HeartbeatResponse is Heartbeat's empty reply.
type HeartbeatResponse struct{}
