// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldCamera    = "camera"
	FieldChannel   = "channel"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Upstream / device fields
	FieldHost    = "host"
	FieldCommand = "cmd"
	FieldStream  = "stream"

	// Recording fields
	FieldRecording = "recording"
	FieldMonth     = "month"

	// Path / URL fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
)
