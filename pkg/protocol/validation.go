package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns the validator used for inbound payloads. A single
// instance is safe for concurrent use and caches struct metadata.
func NewValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// DecodePayload unmarshals an envelope's data into dst and runs struct
// validation. Both failure cases map to INVALID_PAYLOAD at the router.
func DecodePayload(v *validator.Validate, data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	if err := v.Struct(dst); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
