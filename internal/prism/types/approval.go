package types

import "strings"

// ApprovalAction identifies the "allow access" action attached to approval prompts.
const ApprovalAction = "io.prismwall.prismd.APPROVE_THIRD_PARTY"

// ApprovalMessage is delivered out-of-band when the user acts on a prompt.
type ApprovalMessage struct {
	Action         string `json:"action"`
	NotificationID int    `json:"notification_id"`
	Caller         string `json:"caller"`
}

func (m ApprovalMessage) Valid() bool {
	return m.Action == ApprovalAction &&
		m.NotificationID > 0 &&
		strings.TrimSpace(m.Caller) != ""
}

// PendingApproval is an ephemeral record of a posted prompt.
type PendingApproval struct {
	NotificationID int
	Caller         string
}
