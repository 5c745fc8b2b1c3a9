package location

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tallybill/tally/conf"
	tallytest "github.com/tallybill/tally/internal/testing"
	"github.com/tallybill/tally/internal/util"
)

// fakeGeography accepts US addresses with any state/county and 5-digit
// zips. Everything else is unknown.
type fakeGeography struct{}

func (fakeGeography) CountryExists(country string) (bool, error) {
	return country == "US", nil
}

func (fakeGeography) RegionExists(country, state, county string) (bool, error) {
	return country == "US", nil
}

func (fakeGeography) ZipValid(country, zip string) (bool, error) {
	if country != "US" {
		return false, nil
	}
	if len(zip) != 5 {
		return false, nil
	}
	for _, c := range zip {
		if c < '0' || c > '9' {
			return false, nil
		}
	}
	return true, nil
}

type fakeDistricts struct {
	codes map[string]bool
}

func (f fakeDistricts) DistrictExists(code string) (bool, error) {
	return f.codes[code], nil
}

type fakeGeocoder struct {
	lat, lon float64
	err      error
	calls    int
}

func (f *fakeGeocoder) LookupCoordinates(ctx context.Context, loc *Location) (float64, float64, error) {
	f.calls++
	if f.err != nil {
		return 0, 0, f.err
	}
	return f.lat, f.lon, nil
}

type fakeStandardizer struct {
	result *StandardizedAddress
	err    error
}

func (f *fakeStandardizer) Standardize(ctx context.Context, loc *Location) (*StandardizedAddress, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type testEnv struct {
	conn       *sql.DB
	conf       *conf.Resolver
	mutator    *conf.Mutator
	validator  *Validator
	reconciler *Reconciler
	geocoder   *fakeGeocoder
	exporters  *ExporterRegistry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn := tallytest.CreateTestDB(t)
	resolver := conf.NewResolver(conn, "", nil)
	mutator := conf.NewMutator(conn, resolver, nil)
	geocoder := &fakeGeocoder{lat: 39.78, lon: -89.65}
	validator := NewValidator(resolver, fakeGeography{}, fakeDistricts{codes: map[string]bool{"530": true}}, geocoder, nil)
	exporters := NewExporterRegistry()
	reconciler := NewReconciler(conn, resolver, validator, exporters, nil)

	return &testEnv{
		conn:       conn,
		conf:       resolver,
		mutator:    mutator,
		validator:  validator,
		reconciler: reconciler,
		geocoder:   geocoder,
		exporters:  exporters,
	}
}

// springfield returns a valid customer-owned proposal.
func springfield(custnum int64) *Location {
	return &Location{
		Custnum:  custnum,
		Address1: "123 Main St",
		City:     "Springfield",
		State:    "IL",
		Zip:      "62704",
		Country:  "US",
		Latitude: util.Ptr(39.78),
		Longitude: util.Ptr(-89.65),
	}
}

func (e *testEnv) insertCustomer(t *testing.T, billLoc, shipLoc int64) int64 {
	t.Helper()
	res, err := e.conn.Exec("INSERT INTO customers (bill_locationnum, ship_locationnum) VALUES (?, ?)",
		sqlNull(billLoc), sqlNull(shipLoc))
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

// ensureCustomer satisfies the customers foreign key for fixtures that
// reference a customer by number without caring about its addresses.
func (e *testEnv) ensureCustomer(t *testing.T, custnum int64) {
	t.Helper()
	_, err := e.conn.Exec("INSERT OR IGNORE INTO customers (custnum) VALUES (?)", custnum)
	require.NoError(t, err)
}

func (e *testEnv) insertContact(t *testing.T, custnum, locationnum int64) {
	t.Helper()
	e.ensureCustomer(t, custnum)
	_, err := e.conn.Exec("INSERT INTO contacts (custnum, locationnum) VALUES (?, ?)", custnum, locationnum)
	require.NoError(t, err)
}

type pkgSpec struct {
	custnum       int64
	locationnum   int64
	mainPkgnum    int64
	oneTimeCharge bool
	invoiced      bool
	cancelled     bool
}

func (e *testEnv) insertPackage(t *testing.T, spec pkgSpec) int64 {
	t.Helper()
	e.ensureCustomer(t, spec.custnum)
	var cancel interface{}
	if spec.cancelled {
		cancel = time.Now().UTC().Format(time.RFC3339)
	}
	res, err := e.conn.Exec(`
		INSERT INTO packages (custnum, locationnum, main_pkgnum, one_time_charge, invoiced, start_date, cancel_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		spec.custnum, spec.locationnum, spec.mainPkgnum, spec.oneTimeCharge, spec.invoiced,
		time.Now().UTC().Format(time.RFC3339), cancel)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func sqlNull(v int64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}
