package apiclient

// VisitorPayload is the client-side registration request.
type VisitorPayload struct {
	VisitorName        string
	VisitorAffiliation string
	VisitRef           string
}

type visitorRequest struct {
	VisitorName        string `json:"visitor_name"`
	VisitorAffiliation string `json:"visitor_affiliation"`
	VisitRef           string `json:"visit_ref"`
}

type visitorResponse struct {
	SessionID          string `json:"session_id"`
	VisitorName        string `json:"visitor_name"`
	VisitorAffiliation string `json:"visitor_affiliation"`
	VisitRef           string `json:"visit_ref"`
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

// ChatResult is the question-answering response. Blocked means the API
// declined to answer; Reason carries the server-supplied notice when present.
type ChatResult struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
	Blocked   bool   `json:"blocked"`
	Reason    string `json:"reason,omitempty"`
	Category  string `json:"category,omitempty"`
}

// StatPoint is one labeled value in a dashboard series.
type StatPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// VisitorRecord is one row of the latest-visitors dashboard table.
type VisitorRecord struct {
	ID                 string `json:"id"`
	VisitorName        string `json:"visitor_name,omitempty"`
	VisitorAffiliation string `json:"visitor_affiliation,omitempty"`
	VisitRef           string `json:"visit_ref,omitempty"`
	SessionID          string `json:"session_id,omitempty"`
	CreatedAt          string `json:"created_at,omitempty"`
}

// ConversationRecord is one logged question/answer pair.
type ConversationRecord struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	Answer    string `json:"answer,omitempty"`
	Category  string `json:"category,omitempty"`
	IsBlocked bool   `json:"is_blocked,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// DashboardStats aggregates the admin dashboard series.
type DashboardStats struct {
	RefStats           []StatPoint          `json:"ref_stats"`
	QuestionCategories []StatPoint          `json:"question_categories"`
	DailyVisits        []StatPoint          `json:"daily_visits"`
	LatestVisitors     []VisitorRecord      `json:"latest_visitors"`
	RecentQuestions    []ConversationRecord `json:"recent_questions"`
}
