package domain

import (
	"encoding/json"
	"time"
)

// NilUUID is used as property_id for inquiries not tied to a listing.
const NilUUID = "00000000-0000-0000-0000-000000000000"

// Inquiry is a tenant question, optionally about a property.
type Inquiry struct {
	ID                  string          `json:"id"`
	PropertyID          string          `json:"property_id"`
	TenantID            string          `json:"tenant_id"`
	Question            string          `json:"question"`
	AIResponse          *string         `json:"ai_response"`
	Status              string          `json:"status,omitempty"`
	ConversationHistory json.RawMessage `json:"conversation_history,omitempty"`
	CreatedAt           *time.Time      `json:"created_at,omitempty"`
	Property            *Property       `json:"property,omitempty"`
}

// InquiryFilter narrows GET /api/inquiries. An empty PropertyIDs slice with
// ByProperties set matches nothing.
type InquiryFilter struct {
	TenantID     string
	PropertyIDs  []string
	ByProperties bool
}

// SubmitInquiryRequest is the body for POST /api/tenant/inquiry/submit.
type SubmitInquiryRequest struct {
	Type       string   `json:"type"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Contact    string   `json:"contact"`
	Images     []string `json:"images"`
	PropertyID string   `json:"property_id"`
}

// ConversationMessage is one entry of an inquiry's conversation history.
type ConversationMessage struct {
	Role     string               `json:"role"`
	Content  string               `json:"content"`
	Metadata *ConversationContext `json:"metadata,omitempty"`
}

// ConversationContext carries the form fields of a submitted inquiry.
type ConversationContext struct {
	Type    string   `json:"type"`
	Title   string   `json:"title"`
	Contact string   `json:"contact"`
	Images  []string `json:"images"`
}

// NewInquiry holds the columns written when an inquiry is created.
type NewInquiry struct {
	TenantID            string
	PropertyID          string
	Question            string
	Status              string
	ConversationHistory string
}
