package dto

// CooldownCheckRequest asks whether a resource can be reprocessed yet.
type CooldownCheckRequest struct {
	ResourceID      string `json:"resource_id" validate:"required"`
	CooldownMinutes int    `json:"cooldown_minutes" validate:"required,gt=0"`
}

// CooldownRecordRequest marks a resource as just processed.
type CooldownRecordRequest struct {
	ResourceID string `json:"resource_id" validate:"required"`
}
