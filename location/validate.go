package location

import (
	"context"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/tallybill/tally/conf"
	"github.com/tallybill/tally/errors"
)

// Configuration keys consulted during validation. These are policy
// switches on the shared conf table, resolved per the usual scope rules.
const (
	ConfNoCity               = "cust_main-no_city"
	ConfRequireAddress2      = "cust_main-require_address2"
	ConfProspectLocationKind = "prospect_main-location_kind"
	ConfTaxDistrictMethod    = "tax_district_method"
	ConfLocationExports      = "location-exports"
)

// RuleKind tags a field validation rule. Rules are plain data evaluated
// by the generic interpreter below; lookups dispatch to named read-only
// collaborator tables rather than embedding code.
type RuleKind int

const (
	// RuleRequired fails when the field is blank.
	RuleRequired RuleKind = iota
	// RulePattern fails when a non-blank field does not match Pattern.
	RulePattern
	// RuleNumeric fails when a non-blank field does not parse as a number.
	RuleNumeric
	// RuleLookup fails when a non-blank field is absent from the named
	// collaborator table.
	RuleLookup
)

// FieldRule is one tagged validation rule for a location text field.
type FieldRule struct {
	Field   string
	Kind    RuleKind
	Pattern *regexp.Regexp // RulePattern only
	Lookup  string         // RuleLookup only: "country", "zip", "district", "region"
}

// Validator normalizes and validates locations. Policies come from the
// conf resolver; geography and tax districts from read-only collaborator
// tables. BulkImport relaxes the checks that would make a mass load
// unbearably chatty with external services.
type Validator struct {
	Conf       *conf.Resolver
	Geography  GeographyTable
	Districts  DistrictTable
	Geocoder   Geocoder
	BulkImport bool

	log *zap.SugaredLogger
}

// NewValidator creates a validator. Geocoder may be nil, in which case
// the synchronous coordinate backfill is skipped.
func NewValidator(c *conf.Resolver, geography GeographyTable, districts DistrictTable, geocoder Geocoder, log *zap.SugaredLogger) *Validator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Validator{
		Conf:      c,
		Geography: geography,
		Districts: districts,
		Geocoder:  geocoder,
		log:       log,
	}
}

// Normalize trims essential fields and applies the global no-city policy.
func (v *Validator) Normalize(loc *Location) error {
	loc.TrimEssential()

	noCity, err := v.Conf.Bool(ConfNoCity, 0)
	if err != nil {
		return err
	}
	if noCity {
		loc.City = ""
	}
	return nil
}

// applyRule evaluates one tagged rule against the location.
func (v *Validator) applyRule(loc *Location, r FieldRule) error {
	value := loc.FieldValue(r.Field)

	switch r.Kind {
	case RuleRequired:
		if value == "" {
			return &ValidationError{Field: r.Field, Reason: "required"}
		}
	case RulePattern:
		if value != "" && !r.Pattern.MatchString(value) {
			return &ValidationError{Field: r.Field, Reason: "malformed"}
		}
	case RuleNumeric:
		if value != "" {
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				return &ValidationError{Field: r.Field, Reason: "must be numeric"}
			}
		}
	case RuleLookup:
		if value == "" {
			return nil
		}
		ok, err := v.runLookup(loc, r.Lookup, value)
		if err != nil {
			return errors.Wrapf(err, "lookup %s for %s", r.Lookup, r.Field)
		}
		if !ok {
			return &ValidationError{Field: r.Field, Reason: "unknown " + r.Lookup}
		}
	}
	return nil
}

// runLookup dispatches a RuleLookup to the named collaborator table.
func (v *Validator) runLookup(loc *Location, table, value string) (bool, error) {
	switch table {
	case "country":
		return v.Geography.CountryExists(value)
	case "zip":
		return v.Geography.ZipValid(loc.Country, value)
	case "region":
		return v.Geography.RegionExists(loc.Country, loc.State, loc.County)
	case "district":
		return v.Districts.DistrictExists(value)
	}
	return false, errors.Newf("unknown lookup table %q", table)
}

func (v *Validator) checkOwner(loc *Location) error {
	owners := 0
	if loc.Custnum != 0 {
		owners++
	}
	if loc.Prospectnum != 0 {
		owners++
	}
	if loc.CustnumPending {
		owners++
	}
	if owners != 1 {
		return &ValidationError{Field: "custnum", Reason: "exactly one of customer, prospect, or pending-customer marker must be set"}
	}
	return nil
}

// Validate runs the ordered rule set. Disabled locations always pass so
// that disabling can never fail. The first failing rule wins.
func (v *Validator) Validate(ctx context.Context, loc *Location) error {
	if loc.Disabled {
		return nil
	}

	// 1. Owner reference well-formed.
	if err := v.checkOwner(loc); err != nil {
		return err
	}

	// Coordinate backfill happens before validation completes so the
	// coordinate check below sees the fresh values.
	if !loc.HasCoordinates() && !v.BulkImport && v.Geocoder != nil {
		lat, lon, err := v.Geocoder.LookupCoordinates(ctx, loc)
		if err != nil {
			return &ValidationError{Field: "latitude", Reason: "coordinate lookup failed: " + err.Error()}
		}
		loc.Latitude = &lat
		loc.Longitude = &lon
		loc.CoordAuto = true
	}

	// 2. Required text fields per policy.
	rules := []FieldRule{{Field: "address1", Kind: RuleRequired}}
	noCity, err := v.Conf.Bool(ConfNoCity, 0)
	if err != nil {
		return err
	}
	if !noCity {
		rules = append(rules, FieldRule{Field: "city", Kind: RuleRequired})
	}

	// 3. Country and zip against the geography tables (skipped during
	// bulk import).
	if !v.BulkImport {
		rules = append(rules,
			FieldRule{Field: "country", Kind: RuleLookup, Lookup: "country"},
			FieldRule{Field: "zip", Kind: RuleLookup, Lookup: "zip"},
		)
	}

	for _, r := range rules {
		if err := v.applyRule(loc, r); err != nil {
			return err
		}
	}

	// 4. Coordinates, if present, are valid decimal degree pairs.
	if (loc.Latitude == nil) != (loc.Longitude == nil) {
		return &ValidationError{Field: "latitude", Reason: "latitude and longitude must be set together"}
	}
	if loc.HasCoordinates() {
		if *loc.Latitude < -90 || *loc.Latitude > 90 {
			return &ValidationError{Field: "latitude", Reason: "out of range"}
		}
		if *loc.Longitude < -180 || *loc.Longitude > 180 {
			return &ValidationError{Field: "longitude", Reason: "out of range"}
		}
	}

	// 5. Census tract format, canonicalized in place.
	tract, err := NormalizeCensusTract(loc.Censustract)
	if err != nil {
		return err
	}
	loc.Censustract = tract

	// 6. Unit/address2 policy.
	requireAddr2, err := v.Conf.Bool(ConfRequireAddress2, 0)
	if err != nil {
		return err
	}
	if requireAddr2 {
		if err := v.applyRule(loc, FieldRule{Field: "address2", Kind: RuleRequired}); err != nil {
			return err
		}
	}

	// 7. Owner exclusivity re-check: the pending marker may have been
	// cleared by the caller between parse and validation.
	if err := v.checkOwner(loc); err != nil {
		return err
	}

	// 8. Prospect location-kind policy.
	if loc.Prospectnum != 0 {
		kindRequired, err := v.Conf.Bool(ConfProspectLocationKind, 0)
		if err != nil {
			return err
		}
		if kindRequired {
			if err := v.applyRule(loc, FieldRule{Field: "location_kind", Kind: RuleRequired}); err != nil {
				return err
			}
		}
	}

	// 9. Tax district must exist when a district-based tax method is
	// active; an unknown district would silently mis-tax invoices.
	taxMethod, err := v.Conf.Value(ConfTaxDistrictMethod, 0)
	if err != nil {
		return err
	}
	if taxMethod != "" && loc.District != "" {
		if err := v.applyRule(loc, FieldRule{Field: "district", Kind: RuleLookup, Lookup: "district"}); err != nil {
			return err
		}
	}

	// 10. Country/state/county combination, unless bulk import.
	if !v.BulkImport {
		if err := v.applyRule(loc, FieldRule{Field: "country", Kind: RuleLookup, Lookup: "region"}); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				return &ValidationError{Field: "county", Reason: "unknown country/state/county combination"}
			}
			return err
		}
	}

	return nil
}
