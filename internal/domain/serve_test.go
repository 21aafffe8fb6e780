package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCoordinates(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		pair *Coordinates
		want string
	}{
		{"canonical string passes through", "36.15,-95.99", nil, "36.15,-95.99"},
		{"string with spaces parses", "36.15, -95.99", nil, "36.15, -95.99"},
		{"structured pair formats", "", &Coordinates{Latitude: 36.15398, Longitude: -95.99277}, "36.15398,-95.99277"},
		{"string wins over pair", "1,2", &Coordinates{Latitude: 9, Longitude: 9}, "1,2"},
		{"missing both", "", nil, "0,0"},
		{"malformed string", "not-a-location", nil, "0,0"},
		{"too many parts", "1,2,3", nil, "0,0"},
		{"non-numeric latitude", "abc,-95.99", nil, "0,0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeCoordinates(tt.raw, tt.pair)
			assert.Equal(t, tt.want, got)

			// Whatever the input, the result must parse or be the zero literal.
			if got != ZeroCoordinates {
				_, _, err := ParseCoordinates(got)
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalizeStatus(t *testing.T) {
	assert.Equal(t, ServeStatusCompleted, NormalizeStatus("completed"))
	assert.Equal(t, ServeStatusCompleted, NormalizeStatus(" Completed "))
	assert.Equal(t, ServeStatusFailed, NormalizeStatus("failed"))
	assert.Equal(t, ServeStatusUnknown, NormalizeStatus(""))
	assert.Equal(t, ServeStatusUnknown, NormalizeStatus("delivered"))
}

func TestServeUpdate_Diff(t *testing.T) {
	orig := &ServeAttempt{
		Notes:      "left card at door",
		Status:     ServeStatusFailed,
		CaseNumber: "CJ-2025-1144",
		CaseName:   "Smith v. Jones",
	}

	strPtr := func(s string) *string { return &s }
	statusPtr := func(s ServeStatus) *ServeStatus { return &s }

	t.Run("empty update is empty diff", func(t *testing.T) {
		assert.Empty(t, ServeUpdate{}.Diff(orig))
	})

	t.Run("unchanged values are empty diff", func(t *testing.T) {
		u := ServeUpdate{
			Notes:      strPtr("left card at door"),
			Status:     statusPtr(ServeStatusFailed),
			CaseNumber: strPtr("CJ-2025-1144"),
			CaseName:   strPtr("Smith v. Jones"),
		}
		assert.Empty(t, u.Diff(orig))
	})

	t.Run("only changed fields appear", func(t *testing.T) {
		u := ServeUpdate{
			Notes:  strPtr("served personally"),
			Status: statusPtr(ServeStatusCompleted),
		}
		diff := u.Diff(orig)
		require.Len(t, diff, 2)
		assert.Equal(t, "served personally", diff[FieldNotes])
		assert.Equal(t, "completed", diff[FieldStatus])
	})
}

func TestWireFields_ThumbnailOmittedWhenMissing(t *testing.T) {
	attempt := &ServeAttempt{
		ID:          "abc123",
		ClientID:    "client1",
		ClientName:  "Acme Process LLC",
		Status:      ServeStatusCompleted,
		Coordinates: "36.15,-95.99",
		ImageURL:    "https://files.example.com/evidence/abc",
		Timestamp:   time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	fields := attempt.WireFields()
	assert.Equal(t, "https://files.example.com/evidence/abc", fields[FieldImageURL])
	assert.NotContains(t, fields, FieldThumbnailURL)
	assert.NotContains(t, fields, FieldThumbnailFileID)
	assert.NotContains(t, fields, FieldLegacyImageData)
	assert.Equal(t, "2025-08-01T12:00:00Z", fields[FieldTimestamp])

	attempt.ThumbnailURL = "https://files.example.com/thumbs/abc"
	attempt.ThumbnailFileID = "thumb1"
	fields = attempt.WireFields()
	assert.Equal(t, "https://files.example.com/thumbs/abc", fields[FieldThumbnailURL])
	assert.Equal(t, "thumb1", fields[FieldThumbnailFileID])
}

func TestServeFromWire_Defaults(t *testing.T) {
	attempt := ServeFromWire("doc1", map[string]any{})

	assert.Equal(t, "doc1", attempt.ID)
	assert.Equal(t, "unknown", attempt.ClientID)
	assert.Equal(t, UnknownClientName, attempt.ClientName)
	assert.Equal(t, UnknownCaseNumber, attempt.CaseNumber)
	assert.Equal(t, UnknownCaseName, attempt.CaseName)
	assert.Equal(t, ServeStatusUnknown, attempt.Status)
	assert.Equal(t, ZeroCoordinates, attempt.Coordinates)
	assert.Equal(t, DefaultAttemptNumber, attempt.AttemptNumber)
	assert.WithinDuration(t, time.Now(), attempt.Timestamp, 5*time.Second)
}

func TestServeFromWire_RoundTrip(t *testing.T) {
	fields := map[string]any{
		FieldClientID:        "c1",
		FieldClientName:      "Riverside Legal",
		FieldCaseNumber:      "CJ-2025-2210",
		FieldCaseName:        "Doe v. Roe",
		FieldStatus:          "completed",
		FieldNotes:           "served at work address",
		FieldAddress:         "123 Main St, Tulsa OK",
		FieldServiceAddress:  "500 Office Park Dr",
		FieldCoordinates:     "36.1,-95.9",
		FieldImageURL:        "https://files.example.com/full/x",
		FieldImageFileID:     "filex",
		FieldThumbnailURL:    "https://files.example.com/thumb/x",
		FieldThumbnailFileID: "thumbx",
		FieldTimestamp:       "2025-07-04T09:30:00Z",
		FieldAttemptNumber:   float64(3), // JSON numbers decode as float64
	}

	attempt := ServeFromWire("doc2", fields)
	assert.Equal(t, "Riverside Legal", attempt.ClientName)
	assert.Equal(t, ServeStatusCompleted, attempt.Status)
	assert.Equal(t, 3, attempt.AttemptNumber)
	assert.Equal(t, time.Date(2025, 7, 4, 9, 30, 0, 0, time.UTC), attempt.Timestamp)
	assert.Equal(t, "filex", attempt.ImageFileID)
	assert.Equal(t, "thumbx", attempt.ThumbnailFileID)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, EINVALID, ErrorCode(Invalid("serve.create", "client ID is required")))
	assert.Equal(t, EDECODE, ErrorCode(Decode(assert.AnError, "media.decode", "bad base64")))
	assert.Equal(t, EINTERNAL, ErrorCode(assert.AnError))
	assert.Equal(t, "", ErrorCode(nil))
}
