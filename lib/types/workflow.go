package types

import "time"

// TicketStatus is the lifecycle state of a support ticket
type TicketStatus string

const (
	// TicketOpen means the ticket is waiting for a staff member
	TicketOpen TicketStatus = "open"

	// TicketTaken means a staff member has claimed the ticket
	TicketTaken TicketStatus = "taken"

	// TicketClosed is terminal; the ticket channel has been reclaimed
	TicketClosed TicketStatus = "closed"
)

// Active reports whether the ticket still occupies a channel
func (s TicketStatus) Active() bool {
	return s == TicketOpen || s == TicketTaken
}

// Ticket is a support-ticket channel with a bounded lifecycle
type Ticket struct {
	// ID is the opaque workflow identifier for the ticket
	ID string `json:"id"`

	// ChannelRef is the provisioned channel backing the ticket
	ChannelRef string `json:"channel_ref"`

	// CommunityID is the community the ticket was opened in
	CommunityID string `json:"community_id"`

	// OpenerUserID is the user who opened the ticket
	OpenerUserID string `json:"opener_user_id"`

	// Category is the support category chosen by the opener
	Category string `json:"category"`

	// Status is the current lifecycle state
	Status TicketStatus `json:"status"`

	// AssignedStaffID is the staff member handling the ticket, if taken
	AssignedStaffID string `json:"assigned_staff_id,omitempty"`

	// OpenedAt is when the ticket was opened
	OpenedAt time.Time `json:"opened_at"`

	// ClosedAt is when the ticket was closed, if it has been
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

// ReportStatus is the lifecycle state of a user report
type ReportStatus string

const (
	// ReportSubmitted means the report is waiting for staff review
	ReportSubmitted ReportStatus = "submitted"

	// ReportTaken means a staff member has claimed the report
	ReportTaken ReportStatus = "taken"

	// ReportVerdictGiven is terminal; the report accepts no further
	// transitions
	ReportVerdictGiven ReportStatus = "verdict_given"
)

// Report is a member-submitted complaint processed through staff review
type Report struct {
	// ID is the opaque workflow identifier for the report
	ID string `json:"id"`

	// CaseID is the ledger case number allocated on submission
	CaseID int64 `json:"case_id"`

	// CommunityID is the community the report was filed in
	CommunityID string `json:"community_id"`

	// ReporterID is the member who filed the report
	ReporterID string `json:"reporter_id"`

	// ReportedUserID is the member the report is about
	ReportedUserID string `json:"reported_user_id"`

	// Reason is the reporter's complaint text
	Reason string `json:"reason"`

	// Evidence holds up to MaxEvidenceEntries supporting URLs
	Evidence []string `json:"evidence,omitempty"`

	// Status is the current lifecycle state
	Status ReportStatus `json:"status"`

	// AssignedStaffID is the staff member reviewing the report, if taken
	AssignedStaffID string `json:"assigned_staff_id,omitempty"`

	// VerdictText is the terminal staff decision, once given
	VerdictText string `json:"verdict_text,omitempty"`

	// PrivateChannelRef is the discussion channel, if one was opened
	PrivateChannelRef string `json:"private_channel_ref,omitempty"`

	// SubmittedAt is when the report was filed
	SubmittedAt time.Time `json:"submitted_at"`
}
