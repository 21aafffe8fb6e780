// Package domain contains core business types and interfaces.
//
// This file defines the ServeAttempt domain type: one recorded attempt to
// deliver a legal document, together with its photographic evidence
// references.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// Serve Status
// =============================================================================

// ServeStatus represents the outcome of a serve attempt.
type ServeStatus string

const (
	// ServeStatusCompleted indicates the documents were delivered.
	ServeStatusCompleted ServeStatus = "completed"

	// ServeStatusFailed indicates the serve was attempted but not completed.
	ServeStatusFailed ServeStatus = "failed"

	// ServeStatusUnknown is the default when no outcome was recorded.
	ServeStatusUnknown ServeStatus = "unknown"
)

// String returns the string representation of the status.
func (s ServeStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a recognized value.
func (s ServeStatus) IsValid() bool {
	switch s {
	case ServeStatusCompleted, ServeStatusFailed, ServeStatusUnknown:
		return true
	}
	return false
}

// NormalizeStatus maps free-form input to a valid ServeStatus, defaulting
// to ServeStatusUnknown.
func NormalizeStatus(raw string) ServeStatus {
	s := ServeStatus(strings.ToLower(strings.TrimSpace(raw)))
	if s.IsValid() {
		return s
	}
	return ServeStatusUnknown
}

// =============================================================================
// Sentinel Defaults
// =============================================================================

// Default display values applied when optional fields are absent. These match
// the values legacy records already carry, so reads and writes stay symmetric.
const (
	UnknownClientName  = "Unknown Client"
	UnknownCaseName    = "Unknown Case"
	UnknownCaseNumber  = "Unknown"
	UnspecifiedCaseNum = "Not Specified"
	NoAddressProvided  = "Address not provided"

	// ZeroCoordinates is persisted when coordinates are missing or malformed.
	ZeroCoordinates = "0,0"

	// DefaultAttemptNumber is used when the submission doesn't say which
	// attempt this is.
	DefaultAttemptNumber = 1
)

// =============================================================================
// Coordinates
// =============================================================================

// Coordinates is a structured latitude/longitude pair as received from
// clients that report device location rather than a preformatted string.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// String renders the canonical "<lat>,<lon>" form used for persistence.
func (c Coordinates) String() string {
	return fmt.Sprintf("%s,%s",
		strconv.FormatFloat(c.Latitude, 'f', -1, 64),
		strconv.FormatFloat(c.Longitude, 'f', -1, 64),
	)
}

// NormalizeCoordinates accepts either the canonical "lat,lon" string or a
// structured pair and returns the canonical string form. Missing or
// malformed input normalizes to ZeroCoordinates; a record's coordinates are
// always a parseable "lat,lon" string once persisted.
func NormalizeCoordinates(raw string, pair *Coordinates) string {
	if raw != "" {
		if _, _, err := ParseCoordinates(raw); err == nil {
			return raw
		}
		return ZeroCoordinates
	}
	if pair != nil {
		return pair.String()
	}
	return ZeroCoordinates
}

// ParseCoordinates splits a "lat,lon" string into its numeric components.
func ParseCoordinates(s string) (lat, lon float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("coordinates %q: want \"lat,lon\"", s)
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("coordinates %q: bad latitude: %w", s, err)
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("coordinates %q: bad longitude: %w", s, err)
	}
	return lat, lon, nil
}

// =============================================================================
// ServeAttempt Domain Type
// =============================================================================

// ServeAttempt is the canonical in-memory record of one serve attempt.
//
// Every external payload shape (document-store wire fields, legacy aliases,
// cached projections) is adapted to and from this single type at the
// boundary; internal logic never carries both spellings of a field.
type ServeAttempt struct {
	ID          string      // Opaque identifier, stable across stores
	ClientID    string      // Owning client
	ClientName  string      // Denormalized display name
	ClientEmail string      // Contact email; enriched in memory, never persisted
	CaseNumber  string      // Optional, defaults to a sentinel
	CaseName    string      // Optional, defaults to a sentinel
	Status      ServeStatus // completed | failed | unknown
	Notes       string
	Address     string // Textual (often geocoded) address
	ServiceAddr string // Separate service address, optional
	Coordinates string // Always canonical "lat,lon" once persisted

	// Evidence references. URLs point into the object store; the record
	// never holds raw image bytes as primary evidence.
	ImageURL        string
	ImageFileID     string
	ThumbnailURL    string
	ThumbnailFileID string

	// LegacyImageData is inline base64 evidence from older producers.
	// Read-only; new records never set it.
	LegacyImageData string

	Timestamp     time.Time
	AttemptNumber int
}

// HasEvidence reports whether the attempt carries any evidence reference,
// stored or legacy.
func (s *ServeAttempt) HasEvidence() bool {
	return s.ImageURL != "" || s.ThumbnailURL != "" || s.LegacyImageData != ""
}

// =============================================================================
// Mutable-Field Diff
// =============================================================================

// ServeUpdate carries the four fields a serve attempt may be mutated with
// after creation. Nil pointers mean "not supplied" and are never compared.
type ServeUpdate struct {
	Notes      *string
	Status     *ServeStatus
	CaseNumber *string
	CaseName   *string
}

// Diff compares the update against the stored original and returns only the
// fields that actually changed, keyed by wire field name. An empty map means
// the update is a no-op and no remote call should be made.
func (u ServeUpdate) Diff(orig *ServeAttempt) map[string]any {
	changed := make(map[string]any)
	if u.Notes != nil && *u.Notes != orig.Notes {
		changed[FieldNotes] = *u.Notes
	}
	if u.Status != nil && *u.Status != orig.Status {
		changed[FieldStatus] = string(*u.Status)
	}
	if u.CaseNumber != nil && *u.CaseNumber != orig.CaseNumber {
		changed[FieldCaseNumber] = *u.CaseNumber
	}
	if u.CaseName != nil && *u.CaseName != orig.CaseName {
		changed[FieldCaseName] = *u.CaseName
	}
	return changed
}

// =============================================================================
// Wire Shape
// =============================================================================

// Wire field names as persisted in the document store. The thumbnail fields
// kept their camelCase spelling when the collection gained them, so they are
// intentionally inconsistent with the rest.
const (
	FieldClientID        = "client_id"
	FieldClientName      = "client_name"
	FieldCaseNumber      = "case_number"
	FieldCaseName        = "case_name"
	FieldStatus          = "status"
	FieldNotes           = "notes"
	FieldAddress         = "address"
	FieldServiceAddress  = "service_address"
	FieldCoordinates     = "coordinates"
	FieldImageURL        = "image_url"
	FieldImageFileID     = "image_file_id"
	FieldThumbnailURL    = "thumbnailUrl"
	FieldThumbnailFileID = "thumbnailFileId"
	FieldLegacyImageData = "image_data"
	FieldTimestamp       = "timestamp"
	FieldAttemptNumber   = "attempt_number"
)

// WireFields flattens the attempt into the document-store payload. Thumbnail
// fields are present only when thumbnail generation succeeded; legacy inline
// data is never written.
func (s *ServeAttempt) WireFields() map[string]any {
	fields := map[string]any{
		FieldClientID:       s.ClientID,
		FieldClientName:     s.ClientName,
		FieldCaseNumber:     s.CaseNumber,
		FieldCaseName:       s.CaseName,
		FieldStatus:         string(s.Status),
		FieldNotes:          s.Notes,
		FieldAddress:        s.Address,
		FieldServiceAddress: s.ServiceAddr,
		FieldCoordinates:    s.Coordinates,
		FieldImageURL:       s.ImageURL,
		FieldImageFileID:    s.ImageFileID,
		FieldTimestamp:      s.Timestamp.UTC().Format(time.RFC3339),
		FieldAttemptNumber:  s.AttemptNumber,
	}
	if s.ThumbnailURL != "" && s.ThumbnailFileID != "" {
		fields[FieldThumbnailURL] = s.ThumbnailURL
		fields[FieldThumbnailFileID] = s.ThumbnailFileID
	}
	return fields
}

// ServeFromWire adapts a raw document into the canonical type, defaulting
// every optional field. Unparseable timestamps default to now, matching the
// read behavior legacy consumers rely on.
func ServeFromWire(id string, fields map[string]any) *ServeAttempt {
	attempt := &ServeAttempt{
		ID:              id,
		ClientID:        wireString(fields, FieldClientID, "unknown"),
		ClientName:      wireString(fields, FieldClientName, UnknownClientName),
		CaseNumber:      wireString(fields, FieldCaseNumber, UnknownCaseNumber),
		CaseName:        wireString(fields, FieldCaseName, UnknownCaseName),
		Status:          NormalizeStatus(wireString(fields, FieldStatus, string(ServeStatusUnknown))),
		Notes:           wireString(fields, FieldNotes, ""),
		Address:         wireString(fields, FieldAddress, ""),
		ServiceAddr:     wireString(fields, FieldServiceAddress, ""),
		Coordinates:     wireString(fields, FieldCoordinates, ZeroCoordinates),
		ImageURL:        wireString(fields, FieldImageURL, ""),
		ImageFileID:     wireString(fields, FieldImageFileID, ""),
		ThumbnailURL:    wireString(fields, FieldThumbnailURL, ""),
		ThumbnailFileID: wireString(fields, FieldThumbnailFileID, ""),
		LegacyImageData: wireString(fields, FieldLegacyImageData, ""),
		Timestamp:       time.Now().UTC(),
		AttemptNumber:   DefaultAttemptNumber,
	}

	if raw := wireString(fields, FieldTimestamp, ""); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			attempt.Timestamp = ts
		}
	}
	if n, ok := wireInt(fields, FieldAttemptNumber); ok && n > 0 {
		attempt.AttemptNumber = n
	}
	return attempt
}

func wireString(fields map[string]any, key, fallback string) string {
	if v, ok := fields[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

func wireInt(fields map[string]any, key string) (int, bool) {
	switch v := fields[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	return 0, false
}
