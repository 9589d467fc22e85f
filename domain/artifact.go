package domain

import "time"

// Fixed output size of every post image.
const (
	ImageWidth  = 1200
	ImageHeight = 627
)

// ImageArtifact is the illustration generated for the final draft. Ref is the
// storage key the persistence layer writes Data under.
type ImageArtifact struct {
	Ref          string    `json:"ref"`
	Data         []byte    `json:"-"`
	MIMEType     string    `json:"mime_type"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	DraftVersion int       `json:"draft_version"`
	Prompt       string    `json:"prompt,omitempty"`
	AltText      string    `json:"alt_text,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// StoredPost is the durable record of one completed run.
type StoredPost struct {
	ID           string          `json:"id"`
	RunID        string          `json:"run_id"`
	UserID       string          `json:"user_id"`
	Status       Status          `json:"status"`
	Versions     []Draft         `json:"versions"`
	FinalVersion int             `json:"final_version"`
	Reviews      []ReviewRecord  `json:"reviews"`
	Image        *ImageArtifact  `json:"image,omitempty"`
	ImageRef     string          `json:"image_ref,omitempty"`
	ImageError   string          `json:"image_error,omitempty"`
	Source       SourceContent   `json:"source"`
	Preferences  UserPreferences `json:"preferences"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Final returns the draft FinalVersion points at.
func (p StoredPost) Final() (Draft, bool) {
	for _, d := range p.Versions {
		if d.Version == p.FinalVersion {
			return d, true
		}
	}
	return Draft{}, false
}
