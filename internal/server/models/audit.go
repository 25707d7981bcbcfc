package models

import "time"

// ActionKind names the operation an audit record describes.
type ActionKind string

const (
	ActionUpload          ActionKind = "upload"
	ActionDownload        ActionKind = "download"
	ActionView            ActionKind = "view"
	ActionDelete          ActionKind = "delete"
	ActionRestore         ActionKind = "restore"
	ActionPermanentDelete ActionKind = "permanent_delete"
	ActionExpire          ActionKind = "expire"
)

func (a ActionKind) Valid() bool {
	switch a {
	case ActionUpload, ActionDownload, ActionView, ActionDelete,
		ActionRestore, ActionPermanentDelete, ActionExpire:
		return true
	default:
		return false
	}
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// OutcomeOf maps an operation error to its audit outcome.
func OutcomeOf(err error) Outcome {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// Origin describes where a request came from.
type Origin struct {
	IP        string
	UserAgent string
}

// AuditRecord is one append-only entry of the audit trail.
type AuditRecord struct {
	ID        int64
	Owner     string
	Action    ActionKind
	Filename  string
	Outcome   Outcome
	Timestamp time.Time
	Origin    Origin
}

// AuditFilter selects a page of an owner's audit records.
type AuditFilter struct {
	Owner  string
	Action ActionKind
	Search string
	Page   int
	Limit  int
}

// AuditPage is one page of audit records, newest first.
type AuditPage struct {
	Records []AuditRecord
	Total   int
	Page    int
	Pages   int
}
