package types

// QueueStatus summarizes one served queue for GET /status.
type QueueStatus struct {
	// Queue name on the bus.
	// example: llama_input
	Queue string `json:"queue"`
	// Number of workers consuming from the queue.
	// example: 4
	Workers int `json:"workers"`
}

// StatusResponse is returned by GET /status on the ops server.
type StatusResponse struct {
	// Model family being served.
	// example: llama
	Model string `json:"model"`
	// Lifecycle state: warming or ready.
	// example: ready
	State string `json:"state"`
	// Queues served by the dispatcher.
	Queues []QueueStatus `json:"queues"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix"`
}
