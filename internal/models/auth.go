package models

import "time"

// WorkerTokenRequest carries a worker's credentials for token issuance
type WorkerTokenRequest struct {
	WorkerID     string `json:"worker_id" validate:"required,min=1,max=100"`
	WorkerSecret string `json:"worker_secret" validate:"required,min=1,max=500"`
}

// Validate checks the request against its schema constraints
func (r *WorkerTokenRequest) Validate() error {
	return validate.Struct(r)
}

// WorkerTokenRead is the token issuance response
type WorkerTokenRead struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}
