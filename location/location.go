// Package location implements location identity, deduplication, and
// reconciliation for tally.
//
// A location's "essential" fields define its physical/billing identity;
// everything else is descriptive and may drift freely. The Reconciler
// deduplicates proposed locations against existing ones by essential-field
// identity, relocates dependent packages when a location moves, and
// retires locations via the disabled flag once nothing references them.
package location

import (
	"strings"
	"time"
)

// Location is a service or billing address owned by exactly one of a
// customer, a prospect, or a pending-customer marker.
type Location struct {
	Locationnum    int64
	Custnum        int64
	Prospectnum    int64
	CustnumPending bool

	Locationname   string
	Address1       string
	Address2       string
	City           string
	County         string
	State          string
	Zip            string
	Country        string
	LocationNumber string
	LocationType   string
	LocationKind   string

	Geocode     string
	Latitude    *float64
	Longitude   *float64
	CoordAuto   bool
	AddrClean   bool
	Censustract string
	Censusyear  int
	District    string
	Incorporated bool

	Disabled bool
}

// EssentialFields are the identity-bearing fields: two locations are the
// same place iff all of these match after whitespace trimming. Owner
// fields (custnum/prospectnum) are part of identity but handled
// separately since they are numeric.
var EssentialFields = []string{
	"address1", "address2", "city", "county", "state", "zip", "country",
	"location_number", "location_type", "location_kind",
}

// ImmutableFields are the physical-identity fields frozen once a
// customer-owned location is in active use.
var ImmutableFields = []string{
	"address1", "address2", "city", "state", "zip", "country",
}

// FieldValue returns the named text field. Field names follow the column
// names. Unknown names return "".
func (l *Location) FieldValue(field string) string {
	switch field {
	case "locationname":
		return l.Locationname
	case "address1":
		return l.Address1
	case "address2":
		return l.Address2
	case "city":
		return l.City
	case "county":
		return l.County
	case "state":
		return l.State
	case "zip":
		return l.Zip
	case "country":
		return l.Country
	case "location_number":
		return l.LocationNumber
	case "location_type":
		return l.LocationType
	case "location_kind":
		return l.LocationKind
	case "geocode":
		return l.Geocode
	case "censustract":
		return l.Censustract
	case "district":
		return l.District
	}
	return ""
}

// SetFieldValue assigns the named text field. Unknown names are ignored.
func (l *Location) SetFieldValue(field, value string) {
	switch field {
	case "locationname":
		l.Locationname = value
	case "address1":
		l.Address1 = value
	case "address2":
		l.Address2 = value
	case "city":
		l.City = value
	case "county":
		l.County = value
	case "state":
		l.State = value
	case "zip":
		l.Zip = value
	case "country":
		l.Country = value
	case "location_number":
		l.LocationNumber = value
	case "location_type":
		l.LocationType = value
	case "location_kind":
		l.LocationKind = value
	case "geocode":
		l.Geocode = value
	case "censustract":
		l.Censustract = value
	case "district":
		l.District = value
	}
}

// TrimEssential whitespace-trims every essential field in place. Always
// runs before identity comparison or persistence.
func (l *Location) TrimEssential() {
	for _, f := range EssentialFields {
		l.SetFieldValue(f, strings.TrimSpace(l.FieldValue(f)))
	}
}

// IdentityEqual reports whether two locations are the same place: all
// essential fields, the owner, and the disabled flag match exactly after
// trimming.
func IdentityEqual(a, b *Location) bool {
	if a.Custnum != b.Custnum || a.Prospectnum != b.Prospectnum || a.Disabled != b.Disabled {
		return false
	}
	for _, f := range EssentialFields {
		if strings.TrimSpace(a.FieldValue(f)) != strings.TrimSpace(b.FieldValue(f)) {
			return false
		}
	}
	return true
}

// HasCoordinates reports whether both decimal-degree coordinates are set.
func (l *Location) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// Package is a billed package pointing at a service location.
type Package struct {
	Pkgnum        int64
	Custnum       int64
	Locationnum   int64
	MainPkgnum    int64
	OneTimeCharge bool
	Invoiced      bool
	StartDate     *time.Time
	SetupDate     *time.Time
	CancelDate    *time.Time
}

// Cancelled reports whether the package has been cancelled.
func (p *Package) Cancelled() bool {
	return p.CancelDate != nil
}

// Supplemental reports whether the package is supplemental to a parent
// package and therefore moves with it, never independently.
func (p *Package) Supplemental() bool {
	return p.MainPkgnum != 0
}

// ChargedOneTime reports whether the package is a one-time charge that
// has already been invoiced; its location is historical record, not a
// live billing target.
func (p *Package) ChargedOneTime() bool {
	return p.OneTimeCharge && p.Invoiced
}

// AuditRecord is one field-level before/after entry written when a
// background job changes a location.
type AuditRecord struct {
	Auditnum    int64
	Locationnum int64
	Field       string
	OldValue    string
	NewValue    string
	Job         string
	ChangedAt   time.Time
}
