package envelope

import "errors"

// Sentinel errors for envelope operations.
var (
	// ErrEncoding indicates a value that cannot be represented, such as an
	// unregistered type or a value json.Marshal rejects.
	ErrEncoding = errors.New("envelope: encoding failed")

	// ErrDecoding indicates a payload that cannot be read back: unknown type
	// tag, truncated stream or malformed JSON.
	ErrDecoding = errors.New("envelope: decoding failed")

	// ErrDuplicateTag indicates a tag or type registered twice.
	ErrDuplicateTag = errors.New("envelope: type tag already registered")
)
