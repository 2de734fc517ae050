package service

import (
	"encoding/base64"
	"strings"
)

// VideoMIMEType is the content type of every clip crossing the API.
const VideoMIMEType = "video/mp4"

// DecodeDataURI returns the payload of a base64 data URI.
func DecodeDataURI(uri string) ([]byte, error) {
	header, payload, ok := strings.Cut(uri, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return nil, &ValidationError{Field: "url", Message: "expected a base64 data URI"}
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, &ValidationError{Field: "url", Message: "invalid base64 payload: " + err.Error()}
	}
	if len(data) == 0 {
		return nil, &ValidationError{Field: "url", Message: "empty payload"}
	}
	return data, nil
}

// EncodeDataURI embeds data as a base64 data URI of the given type.
func EncodeDataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
