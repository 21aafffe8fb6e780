package cache

import (
	"time"

	"github.com/justlegal/servetrack/internal/domain"
)

// CachedRecord is the reduced ServeAttempt projection stored locally. Field
// names match the shape the field client already reads from local storage.
// Pointer fields serialize as JSON null when absent, which downstream
// consumers rely on.
type CachedRecord struct {
	ID              string    `json:"id"`
	ClientID        string    `json:"clientId"`
	ClientName      string    `json:"clientName"`
	ClientEmail     string    `json:"clientEmail,omitempty"`
	CaseNumber      string    `json:"caseNumber"`
	CaseName        string    `json:"caseName"`
	Coordinates     string    `json:"coordinates,omitempty"`
	Notes           string    `json:"notes"`
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
	AttemptNumber   int       `json:"attemptNumber"`
	ImageURL        *string   `json:"imageUrl"`
	ImageFileID     string    `json:"imageFileId,omitempty"`
	ThumbnailURL    string    `json:"thumbnailUrl,omitempty"`
	ThumbnailFileID string    `json:"thumbnailFileId,omitempty"`
	LegacyImageData *string   `json:"image_data"`
	Address         string    `json:"address"`
	ServiceAddress  string    `json:"serviceAddress,omitempty"`
}

// FromServeAttempt projects a canonical record into its cached form.
func FromServeAttempt(a *domain.ServeAttempt) CachedRecord {
	rec := CachedRecord{
		ID:              a.ID,
		ClientID:        a.ClientID,
		ClientName:      a.ClientName,
		ClientEmail:     a.ClientEmail,
		CaseNumber:      a.CaseNumber,
		CaseName:        a.CaseName,
		Coordinates:     a.Coordinates,
		Notes:           a.Notes,
		Status:          a.Status.String(),
		Timestamp:       a.Timestamp,
		AttemptNumber:   a.AttemptNumber,
		ImageFileID:     a.ImageFileID,
		ThumbnailURL:    a.ThumbnailURL,
		ThumbnailFileID: a.ThumbnailFileID,
		Address:         a.Address,
		ServiceAddress:  a.ServiceAddr,
	}
	if a.ImageURL != "" {
		rec.ImageURL = &a.ImageURL
	}
	if a.LegacyImageData != "" {
		rec.LegacyImageData = &a.LegacyImageData
	}
	return rec
}

// ToServeAttempt restores the canonical record shape, applying the standard
// defaults for anything the projection dropped.
func (r CachedRecord) ToServeAttempt() *domain.ServeAttempt {
	a := &domain.ServeAttempt{
		ID:              r.ID,
		ClientID:        r.ClientID,
		ClientName:      r.ClientName,
		ClientEmail:     r.ClientEmail,
		CaseNumber:      r.CaseNumber,
		CaseName:        r.CaseName,
		Coordinates:     r.Coordinates,
		Notes:           r.Notes,
		Status:          domain.NormalizeStatus(r.Status),
		Timestamp:       r.Timestamp,
		AttemptNumber:   r.AttemptNumber,
		ImageFileID:     r.ImageFileID,
		ThumbnailURL:    r.ThumbnailURL,
		ThumbnailFileID: r.ThumbnailFileID,
		Address:         r.Address,
		ServiceAddr:     r.ServiceAddress,
	}
	if r.ImageURL != nil {
		a.ImageURL = *r.ImageURL
	}
	if r.LegacyImageData != nil {
		a.LegacyImageData = *r.LegacyImageData
	}
	if a.ClientName == "" {
		a.ClientName = domain.UnknownClientName
	}
	if a.CaseName == "" {
		a.CaseName = domain.UnknownCaseName
	}
	if a.CaseNumber == "" {
		a.CaseNumber = domain.UnknownCaseNumber
	}
	if a.Coordinates == "" {
		a.Coordinates = domain.ZeroCoordinates
	}
	if a.AttemptNumber <= 0 {
		a.AttemptNumber = domain.DefaultAttemptNumber
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	return a
}
