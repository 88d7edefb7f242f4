package models

const (
	RobotStatusActive   = "active"
	RobotStatusDisabled = "disabled"
)

// Robot is a DingTalk group robot registered through the API.
type Robot struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	WebhookURL string `json:"webhook_url"`
	Secret     string `json:"secret,omitempty"`
	Status     string `json:"status"` // active, disabled
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

func (r *Robot) Active() bool {
	return r.Status == RobotStatusActive
}
