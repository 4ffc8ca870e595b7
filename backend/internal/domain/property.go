// backend/internal/domain/property.go

package domain

// Listing is a rental listing found on a search results page.
type Listing struct {
	PropertyID     string
	PropertyURL    string
	Price          string
	Address        string
	Postcode       string
	IsFeatured     bool
	IsPromoted     bool
	ListingText    string
	PostcodeFilter string
}

func (l Listing) EntityID() string {
	if l.PropertyID == "" {
		return UnknownEntity
	}
	return l.PropertyID
}

// Record flattens the listing. Optional fields are left out when empty so a
// listing that never had them compares equal across scrapes.
func (l Listing) Record() Record {
	r := Record{
		"property_id":       l.PropertyID,
		"property_url":      l.PropertyURL,
		"listing_text":      l.ListingText,
		FieldSource:         string(SourceRightmove),
		FieldPostcodeFilter: l.PostcodeFilter,
	}
	if l.Price != "" {
		r["price"] = l.Price
	}
	if l.Address != "" {
		r["address"] = l.Address
	}
	if l.Postcode != "" {
		r["postcode"] = l.Postcode
	}
	if l.IsFeatured {
		r["is_featured"] = true
	}
	if l.IsPromoted {
		r["is_promoted"] = true
	}
	return r
}

// Licence is a property entry of the licensing public register.
type Licence struct {
	Address        string
	Postcode       string
	PostcodeFilter string
	DetailURL      string
	// Details holds the label/value fields of the detail page, keyed by
	// snake_case field name. AdditionalDetails holds the optional second page.
	Details           map[string]string
	AdditionalDetails map[string]string
}

// LicenceNumber returns the licence reference, or "" if the page had none.
func (l Licence) LicenceNumber() string {
	return l.Details["licence_number"]
}

// EntityID prefers the licence number, then the UPRN, then UnknownEntity.
func (l Licence) EntityID() string {
	if n := l.LicenceNumber(); n != "" {
		return n
	}
	if uprn := l.Details["uprn"]; uprn != "" {
		return "uprn-" + uprn
	}
	return UnknownEntity
}

func (l Licence) Record() Record {
	details := make(map[string]any, len(l.Details)+1)
	for k, v := range l.Details {
		details[k] = v
	}
	if len(l.AdditionalDetails) > 0 {
		extra := make(map[string]any, len(l.AdditionalDetails))
		for k, v := range l.AdditionalDetails {
			extra[k] = v
		}
		details["additional_details"] = extra
	}
	r := Record{
		"address":           l.Address,
		"details":           details,
		FieldSource:         string(SourceRegister),
		FieldPostcodeFilter: l.PostcodeFilter,
	}
	if l.Postcode != "" {
		r["postcode"] = l.Postcode
	}
	return r
}
