package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/aeshef/knowledge-bot/internal/models"
	"github.com/aeshef/knowledge-bot/internal/session"
)

// IngestRequest is the request body for starting a capture. Exactly one of
// Text, URL or FileName+Content must be set.
type IngestRequest struct {
	SessionKey string `json:"session_key"`
	Text       string `json:"text,omitempty"`
	URL        string `json:"url,omitempty"`
	FileName   string `json:"file_name,omitempty"`
	// Content carries the raw file bytes, base64-encoded, when FileName is set.
	Content string `json:"content,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// Validate checks the request shape.
func (r IngestRequest) Validate() error {
	inputs := 0
	for _, set := range []bool{r.Text != "", r.URL != "", r.FileName != ""} {
		if set {
			inputs++
		}
	}
	if inputs != 1 {
		return validation.NewError("validation_input", "exactly one of text, url or file_name must be set")
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.SessionKey, validation.Required),
		validation.Field(&r.Content, validation.Required.When(r.FileName != "")),
	)
}

// DerivedRequest attaches late extraction output to a pending capture.
type DerivedRequest struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// Validate checks the request shape.
func (r DerivedRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Channel, validation.Required, validation.By(func(any) error {
			if !models.ValidDerivedChannel(r.Channel) {
				return validation.NewError("validation_channel", "unknown derived channel")
			}
			return nil
		})),
		validation.Field(&r.Text, validation.Required),
	)
}

// TypeRequest overrides the note type of a pending capture.
type TypeRequest struct {
	Type string `json:"type"`
}

// Validate checks the request shape.
func (r TypeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Type, validation.Required),
	)
}

// PendingResponse describes a routed-but-uncommitted capture. Rendered
// carries the Markdown the note would commit as, when a preview was
// requested.
type PendingResponse struct {
	ID       string          `json:"id"`
	Payload  *models.Payload `json:"payload"`
	Rendered string          `json:"rendered,omitempty"`
}

func pendingResponse(p *session.Pending, rendered string) PendingResponse {
	return PendingResponse{ID: p.ID, Payload: p.Payload, Rendered: rendered}
}

// CommitResponse reports where a confirmed note landed.
type CommitResponse struct {
	Path string `json:"path"`
}

// TypeInfo describes one configured note type.
type TypeInfo struct {
	Name    string `json:"name"`
	Dir     string `json:"dir"`
	Default bool   `json:"default"`
	Count   int    `json:"count"`
}
