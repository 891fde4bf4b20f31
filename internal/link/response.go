package link

import (
	"bytes"
	"fmt"
)

const (
	// responsePrefixSize covers the report-id byte, the error-code byte and
	// the 2-byte data-type field of an inbound report.
	responsePrefixSize = 4

	// dataTypeOffset is where the 2-byte data-type field sits in an inbound
	// report.
	dataTypeOffset = 2
)

// EndpointResponse pairs a raw inbound report with the DataType it was
// solicited for.
type EndpointResponse struct {
	Raw  []byte
	Type DataType
}

// Payload returns the sensor payload of the response: the raw report minus
// the fixed prefix and the length of the embedded data-type tag.
func (r EndpointResponse) Payload() ([]byte, error) {
	skip := responsePrefixSize + len(r.Type.Tag())
	if len(r.Raw) < skip {
		return nil, fmt.Errorf("%w: %d-byte report shorter than its %d-byte prefix",
			ErrMalformedResponse, len(r.Raw), skip)
	}
	return r.Raw[skip:], nil
}

// matchesTag reports whether the report's embedded data-type field equals
// the given non-nil tag.
func matchesTag(report, tag []byte) bool {
	if len(report) < dataTypeOffset+len(tag) {
		return false
	}
	return bytes.Equal(report[dataTypeOffset:dataTypeOffset+len(tag)], tag)
}
