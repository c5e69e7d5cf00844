package types

import "time"

// CallerGrant is the persisted access decision for one caller identity. A row
// exists iff the caller has been observed requesting access.
type CallerGrant struct {
	Identity     string    `json:"identity"`
	Allowed      bool      `json:"allowed"`
	RequestCount int       `json:"request_count"`
	LastAccessed time.Time `json:"last_accessed"`
}

// SetAccessRequest is the body of PUT /v1/grants/{identity}.
type SetAccessRequest struct {
	Allowed bool `json:"allowed"`
}
