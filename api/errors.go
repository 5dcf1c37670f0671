package api

import "fmt"

// ProtocolError flags a malformed inbound message. It is reported to the
// offending client and logged; the connection stays open.
type ProtocolError struct {
	Code    string
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error (%s): %s", e.Code, e.Message)
}

// DeliveryError records a failed best-effort delivery to one recipient.
// It never aborts delivery to the remaining recipients and never reaches
// the sender.
type DeliveryError struct {
	SessionID string
	Event     string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to session %s failed for event %s", e.SessionID, e.Event)
}
