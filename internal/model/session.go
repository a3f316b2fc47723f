package model

import (
	"encoding/json"
	"time"
)

type ChatSession struct {
	ID              string        `db:"id" json:"id"`
	VisitorName     string        `db:"visitor_name" json:"visitorName"`
	VisitorEmail    string        `db:"visitor_email" json:"visitorEmail"`
	VisitorPhone    *string       `db:"visitor_phone" json:"visitorPhone,omitempty"`
	VisitorCompany  *string       `db:"visitor_company" json:"visitorCompany,omitempty"`
	InquiryCategory *string       `db:"inquiry_category" json:"inquiryCategory,omitempty"`
	Status          SessionStatus `db:"status" json:"status"`
	CreatedAt       time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updatedAt"`
}

// ToEventData returns JSON data for session events pushed to subscribers.
func (s *ChatSession) ToEventData() json.RawMessage {
	data, _ := json.Marshal(map[string]any{
		"id":          s.ID,
		"visitorName": s.VisitorName,
		"status":      s.Status,
		"updatedAt":   s.UpdatedAt,
	})
	return data
}

type CreateSessionParams struct {
	ID              string
	VisitorName     string
	VisitorEmail    string
	VisitorPhone    *string
	VisitorCompany  *string
	InquiryCategory *string
}

type SessionFilter struct {
	Status *SessionStatus
}
