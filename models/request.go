package models

// RunRequest is the payload for POST /api/v1/runs and POST /api/v1/validate.
type RunRequest struct {
	// Suite is the scenario definition as YAML (or JSON) text. Required.
	Suite string `json:"suite" binding:"required"`

	// BaseURL overrides settings.base_url of the suite.
	BaseURL string `json:"base_url,omitempty" binding:"omitempty,url"`

	// Mode overrides settings.mode of the suite.
	Mode string `json:"mode,omitempty" binding:"omitempty,oneof=sequential parallel"`

	// Parallelism overrides settings.parallelism of the suite.
	Parallelism int `json:"parallelism,omitempty" binding:"omitempty,min=1,max=64"`

	// TimeoutSeconds overrides the global harness timeout.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" binding:"omitempty,min=1,max=3600"`

	// WebhookURL receives a run.completed event when the run finishes.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs the webhook payload with HMAC-SHA256.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}
