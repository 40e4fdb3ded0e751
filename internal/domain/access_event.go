package domain

import "time"

type AccessReason string

const (
	ReasonMissingToken     AccessReason = "missing_token"
	ReasonInvalidToken     AccessReason = "invalid_token"
	ReasonForbiddenRole    AccessReason = "forbidden_role"
	ReasonForbiddenNetwork AccessReason = "forbidden_network"
	ReasonRateLimited      AccessReason = "rate_limited"
)

// AccessEvent records a request the edge gate refused.
type AccessEvent struct {
	ID         string       `json:"id"`
	Reason     AccessReason `json:"reason"`
	Path       string       `json:"path"`
	IP         string       `json:"ip"`
	Subject    string       `json:"subject,omitempty"`
	Email      string       `json:"email,omitempty"`
	Role       string       `json:"role,omitempty"`
	OccurredAt time.Time    `json:"occurredAt"`
}

// Security reports a valid identity probing the admin namespace, as opposed to
// anonymous traffic bouncing to sign-in.
func (e *AccessEvent) Security() bool {
	return e.Reason == ReasonForbiddenRole || e.Reason == ReasonForbiddenNetwork
}

type AlertMessage struct {
	Type  string      `json:"type"`
	To    []string    `json:"to,omitempty"`
	Event AccessEvent `json:"event"`
}
