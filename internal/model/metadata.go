package model

// Metadata describes the process emitting events. Reporters that batch
// send it once per request.
type Metadata struct {
	Service Service `json:"service"`
	Process Process `json:"process"`
}

// Service identifies the instrumented service
type Service struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Environment string `json:"environment,omitempty"`
	Agent       Agent  `json:"agent"`
}

// Agent identifies this library instance
type Agent struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	EphemeralID string `json:"ephemeral_id,omitempty"`
}

// Process identifies the host process
type Process struct {
	PID   int    `json:"pid"`
	Title string `json:"title,omitempty"`
}
