package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDownloadRequest(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		filename string
		expected error
	}{
		{"Valid https", "https://mail-attachment.googleusercontent.com/a", "a.pdf", nil},
		{"Valid http", "http://example.com/a", "a.pdf", nil},
		{"Missing URL", "", "a.pdf", ErrMissingURLOrFilename},
		{"Missing filename", "https://example.com/a", "", ErrMissingURLOrFilename},
		{"Invalid scheme", "ftp://example.com/a", "a.pdf", ErrInvalidURLFormat},
		{"Blob URL", "blob:https://mail.google.com/123", "a.pdf", ErrInvalidURLFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateDownloadRequest(tt.url, tt.filename))
		})
	}
}

func TestNewAttachmentDescriptor(t *testing.T) {
	_, err := NewAttachmentDescriptor("javascript:void(0)", "a.pdf", AttachmentMetadata{})
	assert.ErrorIs(t, err, ErrInvalidURLFormat)

	_, err = NewAttachmentDescriptor("", "a.pdf", AttachmentMetadata{})
	assert.ErrorIs(t, err, ErrInvalidURLFormat)

	d, err := NewAttachmentDescriptor("https://example.com/a", "a.pdf", AttachmentMetadata{Filename: StringPtr("a.pdf")})
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", d.Metadata.FilenameOr("x"))
}

func TestRelayResponseJSON(t *testing.T) {
	resp := RelayResponse{
		RequestID:    "r1",
		RelayPayload: RelayPayload{Status: StatusSuccess, Data: "data:text/plain;base64,aGk=", Size: 2, Type: "text/plain"},
	}
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "success", fields["status"])
	assert.Equal(t, "data:text/plain;base64,aGk=", fields["data"])
	assert.NotContains(t, fields, "downloadId")
	assert.NotContains(t, fields, "ok")

	var metadata AttachmentMetadata
	require.NoError(t, json.Unmarshal([]byte(`{"filename":null,"isCloudLinked":true}`), &metadata))
	assert.Nil(t, metadata.Filename)
	assert.True(t, metadata.IsCloudLinked)
	assert.Equal(t, "fallback", metadata.FilenameOr("fallback"))
}
