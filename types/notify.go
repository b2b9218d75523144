package types

// Notification represents an event pushed to connected web clients.
type Notification struct {
	Type    string         `json:"type,omitempty"`
	Title   string         `json:"title,omitempty"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

const (
	NotifyTypeUploadComplete = "upload_complete"
	NotifyTypeTranscodeReady = "transcode_ready"
	NotifyTypeTranscodeFail  = "transcode_failed"
)
