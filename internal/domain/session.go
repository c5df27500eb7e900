// Package domain contains core domain types for the persona console.
package domain

// SessionInfo identifies one visitor. The session id is opaque and issued by the
// remote registration endpoint; the console never mints or validates one itself.
type SessionInfo struct {
	SessionID          string `json:"sessionId"`
	VisitorName        string `json:"visitorName"`
	VisitorAffiliation string `json:"visitorAffiliation,omitempty"`
	VisitRef           string `json:"visitRef,omitempty"`
}

// WithVisitor returns a copy with updated visitor fields. Editing visitor info
// never changes the session id; identity replacement goes through registration.
func (s SessionInfo) WithVisitor(name, affiliation string) SessionInfo {
	s.VisitorName = name
	s.VisitorAffiliation = affiliation
	return s
}
