// Package payload turns raw optical code strings into domain scan payloads.
package payload

import (
	"encoding/json"

	"github.com/spec-kit/loyalty-scanner/internal/domain"
)

// requiredField maps each payload tag to the field it must carry.
var requiredField = map[domain.PayloadKind]string{
	domain.PayloadCustomerIdentity:    "user_id",
	domain.PayloadRedemptionReference: "punch_card_id",
	domain.PayloadBundleReference:     "bundle_id",
}

// Classify parses raw as one of the known payload shapes. Anything else,
// including partial misreads, yields (nil, false). Values are copied verbatim.
func Classify(raw string) (domain.ScanPayload, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil || fields == nil {
		return nil, false
	}

	tag, ok := stringField(fields, "type")
	if !ok {
		return nil, false
	}
	kind := domain.PayloadKind(tag)
	name, known := requiredField[kind]
	if !known {
		return nil, false
	}
	value, ok := stringField(fields, name)
	if !ok || value == "" {
		return nil, false
	}

	switch kind {
	case domain.PayloadCustomerIdentity:
		return domain.CustomerIdentity{UserID: value}, true
	case domain.PayloadRedemptionReference:
		return domain.RedemptionReference{PunchCardID: value}, true
	case domain.PayloadBundleReference:
		return domain.BundleReference{BundleID: value}, true
	}
	return nil, false
}

func stringField(fields map[string]json.RawMessage, name string) (string, bool) {
	raw, ok := fields[name]
	if !ok {
		return "", false
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	return value, true
}
