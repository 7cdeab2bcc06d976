package domain

// PayloadKind enumerates the optical code payload shapes.
type PayloadKind string

const (
	PayloadCustomerIdentity    PayloadKind = "user_id"
	PayloadRedemptionReference PayloadKind = "redemption_punch_card_id"
	PayloadBundleReference     PayloadKind = "bundle_id"
)

// ScanPayload is a classified optical code payload. The set of implementations
// is closed: CustomerIdentity, RedemptionReference and BundleReference.
type ScanPayload interface {
	Kind() PayloadKind
	scanPayload()
}

// CustomerIdentity identifies a loyalty customer.
type CustomerIdentity struct {
	UserID string `json:"user_id"`
}

// RedemptionReference points at a punch card to redeem.
type RedemptionReference struct {
	PunchCardID string `json:"punch_card_id"`
}

// BundleReference points at a prepaid bundle.
type BundleReference struct {
	BundleID string `json:"bundle_id"`
}

func (CustomerIdentity) Kind() PayloadKind    { return PayloadCustomerIdentity }
func (RedemptionReference) Kind() PayloadKind { return PayloadRedemptionReference }
func (BundleReference) Kind() PayloadKind     { return PayloadBundleReference }

func (CustomerIdentity) scanPayload()    {}
func (RedemptionReference) scanPayload() {}
func (BundleReference) scanPayload()     {}
