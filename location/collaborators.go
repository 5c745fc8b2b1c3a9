package location

import "context"

// Geocoder resolves decimal-degree coordinates for an address. The
// provider is rate-limited externally; interactive callers use it
// synchronously, background backfill throttles itself.
type Geocoder interface {
	LookupCoordinates(ctx context.Context, loc *Location) (lat, lon float64, err error)
}

// StandardizedAddress is the cleaned form of an address as returned by a
// standardization provider.
type StandardizedAddress struct {
	Address1 string
	Address2 string
	City     string
	State    string
	Zip      string
	Country  string
}

// AddressStandardizer cleans an address via an external provider.
type AddressStandardizer interface {
	Standardize(ctx context.Context, loc *Location) (*StandardizedAddress, error)
}

// TractLookup resolves the census tract and census year for a location.
type TractLookup interface {
	LookupTract(ctx context.Context, loc *Location) (tract string, year int, err error)
}

// GeographyTable is the read-only country/state/county/zip reference
// consulted during validation.
type GeographyTable interface {
	CountryExists(country string) (bool, error)
	RegionExists(country, state, county string) (bool, error)
	ZipValid(country, zip string) (bool, error)
}

// DistrictTable is the read-only tax-district reference. An unknown
// district code on a location would silently mis-tax invoices, so
// validation rejects it.
type DistrictTable interface {
	DistrictExists(code string) (bool, error)
}
