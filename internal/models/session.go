package models

import "time"

// Session holds the document and chat state of one quiz conversation.
// AgentSessionID always equals ChatID; it is kept as a separate field because
// clients read it as crew_session_id.
type Session struct {
	ChatID         string    `json:"chat_id"`
	AgentSessionID string    `json:"crew_session_id"`
	PDFText        *string   `json:"pdf_text"`
	PDFFilename    *string   `json:"pdf_filename"`
	Processed      bool      `json:"processed"`
	Messages       []Message `json:"messages"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers never share the stored record.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.PDFText != nil {
		text := *s.PDFText
		c.PDFText = &text
	}
	if s.PDFFilename != nil {
		name := *s.PDFFilename
		c.PDFFilename = &name
	}
	c.Messages = make([]Message, len(s.Messages))
	copy(c.Messages, s.Messages)
	return &c
}
