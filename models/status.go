package models

type RequestStatus string

const (
	RequestPendingAcceptance RequestStatus = "pending_acceptance"
	RequestAccepted          RequestStatus = "accepted"
	RequestDeclined          RequestStatus = "declined"
	RequestReassigned        RequestStatus = "reassigned"
	RequestCancelled         RequestStatus = "cancelled"
	RequestAutoCancelled     RequestStatus = "auto_cancelled"
	RequestInProgress        RequestStatus = "in_progress"
	RequestCompleted         RequestStatus = "completed"
)

// requestEdges is the complete adjacency of the request lifecycle.
var requestEdges = map[RequestStatus][]RequestStatus{
	RequestPendingAcceptance: {RequestAccepted, RequestDeclined, RequestReassigned, RequestCancelled, RequestAutoCancelled},
	RequestAccepted:          {RequestInProgress},
	RequestInProgress:        {RequestCompleted},
	RequestReassigned:        {RequestCancelled},
}

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPendingAcceptance, RequestAccepted, RequestDeclined, RequestReassigned,
		RequestCancelled, RequestAutoCancelled, RequestInProgress, RequestCompleted:
		return true
	}
	return false
}

func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestCompleted, RequestDeclined, RequestCancelled, RequestAutoCancelled:
		return true
	}
	return false
}

// CanMoveTo reports whether target is a direct successor of s.
func (s RequestStatus) CanMoveTo(target RequestStatus) bool {
	for _, next := range requestEdges[s] {
		if next == target {
			return true
		}
	}
	return false
}

type Purpose string

const (
	PurposeSchool      Purpose = "school"
	PurposeScholarship Purpose = "scholarship"
	PurposeJob         Purpose = "job"
)

func (p Purpose) Valid() bool {
	return p == PurposeSchool || p == PurposeScholarship || p == PurposeJob
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutPaid       PayoutStatus = "paid"
	PayoutFailed     PayoutStatus = "failed"
)

type RefundStatus string

const (
	RefundQueued    RefundStatus = "queued"
	RefundSucceeded RefundStatus = "succeeded"
	RefundFailed    RefundStatus = "failed"
)

type WebhookEventStatus string

const (
	WebhookProcessing WebhookEventStatus = "processing"
	WebhookProcessed  WebhookEventStatus = "processed"
	WebhookFailed     WebhookEventStatus = "failed"
)
