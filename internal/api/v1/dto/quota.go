package dto

// QuotaCheckRequest asks whether an action may proceed against the caller's quota.
type QuotaCheckRequest struct {
	QuotaType        string `json:"quota_type" validate:"required,oneof=video_processing shares"`
	Amount           int64  `json:"amount" validate:"required,min=1"`
	VideoDurationSec int    `json:"video_duration_sec" validate:"min=0"`
	FileSizeMB       int    `json:"file_size_mb" validate:"min=0"`
}

// QuotaRecordRequest records usage after an action completed.
type QuotaRecordRequest struct {
	QuotaType        string `json:"quota_type" validate:"required,oneof=video_processing shares"`
	Action           string `json:"action" validate:"required"`
	Amount           int64  `json:"amount" validate:"required,min=1"`
	VideoDurationSec int    `json:"video_duration_sec" validate:"min=0"`
	FileSizeMB       int    `json:"file_size_mb" validate:"min=0"`
	ResourceID       string `json:"resource_id"`
	ResourceType     string `json:"resource_type"`
}

// MarkAlertsReadRequest flags quota alerts as read.
type MarkAlertsReadRequest struct {
	AlertIDs []string `json:"alert_ids" validate:"required,min=1,dive,uuid4"`
}
