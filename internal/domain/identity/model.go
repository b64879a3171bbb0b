package identity

// Principal is the authenticated caller of the sync API. Every sync request
// acts on behalf of exactly one partner.
type Principal struct {
	PartnerID string
	DeviceID  string
	Subject   string
}

func (p Principal) Valid() bool {
	return p.PartnerID != ""
}

// Actor names the principal for audit fields such as resolvedBy.
func (p Principal) Actor() string {
	if p.Subject != "" {
		return p.Subject
	}
	if p.DeviceID != "" {
		return p.DeviceID
	}
	return p.PartnerID
}
