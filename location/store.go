package location

import (
	"database/sql"
	"time"

	"github.com/tallybill/tally/db"
	"github.com/tallybill/tally/errors"
)

const locationColumns = `locationnum, custnum, prospectnum, custnum_pending,
	locationname, address1, address2, city, county, state, zip, country,
	location_number, location_type, location_kind, geocode,
	latitude, longitude, coord_auto, addr_clean,
	censustract, censusyear, district, incorporated, disabled`

// Store handles persistence of locations and their dependent billing
// references. It runs over any db.Queryer so reconciliation steps share
// one transaction.
type Store struct {
	q db.Queryer
}

// NewStore creates a location store over a database handle or transaction.
func NewStore(q db.Queryer) *Store {
	return &Store{q: q}
}

func nullInt64(v int64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullYear(v int) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLocation(row rowScanner) (*Location, error) {
	var (
		loc                  Location
		custnum, prospectnum sql.NullInt64
		lat, lon             sql.NullFloat64
		censusyear           sql.NullInt64
	)
	err := row.Scan(
		&loc.Locationnum, &custnum, &prospectnum, &loc.CustnumPending,
		&loc.Locationname, &loc.Address1, &loc.Address2, &loc.City, &loc.County,
		&loc.State, &loc.Zip, &loc.Country,
		&loc.LocationNumber, &loc.LocationType, &loc.LocationKind, &loc.Geocode,
		&lat, &lon, &loc.CoordAuto, &loc.AddrClean,
		&loc.Censustract, &censusyear, &loc.District, &loc.Incorporated, &loc.Disabled,
	)
	if err != nil {
		return nil, err
	}

	loc.Custnum = custnum.Int64
	loc.Prospectnum = prospectnum.Int64
	if lat.Valid {
		loc.Latitude = &lat.Float64
	}
	if lon.Valid {
		loc.Longitude = &lon.Float64
	}
	loc.Censusyear = int(censusyear.Int64)
	return &loc, nil
}

// GetLocation fetches a location by primary key.
func (s *Store) GetLocation(locationnum int64) (*Location, error) {
	row := s.q.QueryRow(`SELECT `+locationColumns+` FROM locations WHERE locationnum = ?`, locationnum)

	loc, err := scanLocation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("location %d", locationnum)
		}
		return nil, errors.Wrapf(err, "failed to get location %d", locationnum)
	}
	return loc, nil
}

// InsertLocation inserts a new location and fills in its Locationnum.
func (s *Store) InsertLocation(loc *Location) error {
	res, err := s.q.Exec(`
		INSERT INTO locations (
			custnum, prospectnum, custnum_pending,
			locationname, address1, address2, city, county, state, zip, country,
			location_number, location_type, location_kind, geocode,
			latitude, longitude, coord_auto, addr_clean,
			censustract, censusyear, district, incorporated, disabled
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		nullInt64(loc.Custnum), nullInt64(loc.Prospectnum), loc.CustnumPending,
		loc.Locationname, loc.Address1, loc.Address2, loc.City, loc.County,
		loc.State, loc.Zip, loc.Country,
		loc.LocationNumber, loc.LocationType, loc.LocationKind, loc.Geocode,
		nullFloat(loc.Latitude), nullFloat(loc.Longitude), loc.CoordAuto, loc.AddrClean,
		loc.Censustract, nullYear(loc.Censusyear), loc.District, loc.Incorporated, loc.Disabled,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert location")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to read inserted locationnum")
	}
	loc.Locationnum = id
	return nil
}

// UpdateLocation writes every column of an existing location by primary
// key. Callers are responsible for immutability checks; see
// Reconciler.Replace.
func (s *Store) UpdateLocation(loc *Location) error {
	res, err := s.q.Exec(`
		UPDATE locations SET
			custnum = ?, prospectnum = ?, custnum_pending = ?,
			locationname = ?, address1 = ?, address2 = ?, city = ?, county = ?,
			state = ?, zip = ?, country = ?,
			location_number = ?, location_type = ?, location_kind = ?, geocode = ?,
			latitude = ?, longitude = ?, coord_auto = ?, addr_clean = ?,
			censustract = ?, censusyear = ?, district = ?, incorporated = ?, disabled = ?
		WHERE locationnum = ?
	`,
		nullInt64(loc.Custnum), nullInt64(loc.Prospectnum), loc.CustnumPending,
		loc.Locationname, loc.Address1, loc.Address2, loc.City, loc.County,
		loc.State, loc.Zip, loc.Country,
		loc.LocationNumber, loc.LocationType, loc.LocationKind, loc.Geocode,
		nullFloat(loc.Latitude), nullFloat(loc.Longitude), loc.CoordAuto, loc.AddrClean,
		loc.Censustract, nullYear(loc.Censusyear), loc.District, loc.Incorporated, loc.Disabled,
		loc.Locationnum,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update location %d", loc.Locationnum)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if n == 0 {
		return errors.NewNotFoundError("location %d vanished during update", loc.Locationnum)
	}
	return nil
}

// FindByIdentity searches for an existing location whose essential-field
// tuple exactly matches the (already normalized) proposed location.
// Returns errors.ErrNotFound when no match exists.
func (s *Store) FindByIdentity(loc *Location) (*Location, error) {
	row := s.q.QueryRow(`
		SELECT `+locationColumns+` FROM locations
		WHERE custnum IS ? AND prospectnum IS ?
			AND address1 = ? AND address2 = ? AND city = ? AND county = ?
			AND state = ? AND zip = ? AND country = ?
			AND location_number = ? AND location_type = ? AND location_kind = ?
			AND disabled = ?
	`,
		nullInt64(loc.Custnum), nullInt64(loc.Prospectnum),
		loc.Address1, loc.Address2, loc.City, loc.County,
		loc.State, loc.Zip, loc.Country,
		loc.LocationNumber, loc.LocationType, loc.LocationKind,
		loc.Disabled,
	)

	found, err := scanLocation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrap(errors.ErrNotFound, "no location with matching identity")
		}
		return nil, errors.Wrap(err, "failed to search locations by identity")
	}
	return found, nil
}

// DisableLocation retires a location. By policy this performs no
// validation: disabling must never fail.
func (s *Store) DisableLocation(locationnum int64) error {
	_, err := s.q.Exec(`UPDATE locations SET disabled = 1 WHERE locationnum = ?`, locationnum)
	if err != nil {
		return errors.Wrapf(err, "failed to disable location %d", locationnum)
	}
	return nil
}

// CustomerRefCount counts customers using the location as a billing or
// service address.
func (s *Store) CustomerRefCount(locationnum int64) (int, error) {
	var n int
	err := s.q.QueryRow(`
		SELECT COUNT(*) FROM customers
		WHERE bill_locationnum = ? OR ship_locationnum = ?
	`, locationnum, locationnum).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count customer references")
	}
	return n, nil
}

// ContactRefCount counts contacts pointing at the location.
func (s *Store) ContactRefCount(locationnum int64) (int, error) {
	var n int
	err := s.q.QueryRow(`SELECT COUNT(*) FROM contacts WHERE locationnum = ?`, locationnum).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count contact references")
	}
	return n, nil
}

// ActivePackageRefCount counts uncancelled packages billed to the location.
func (s *Store) ActivePackageRefCount(locationnum int64) (int, error) {
	var n int
	err := s.q.QueryRow(`
		SELECT COUNT(*) FROM packages
		WHERE locationnum = ? AND cancel_date IS NULL
	`, locationnum).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count package references")
	}
	return n, nil
}

// InUse reports whether anything still references the location: a
// customer billing/service address, a contact, or an uncancelled package.
func (s *Store) InUse(locationnum int64) (bool, error) {
	custs, err := s.CustomerRefCount(locationnum)
	if err != nil {
		return false, err
	}
	if custs > 0 {
		return true, nil
	}

	contacts, err := s.ContactRefCount(locationnum)
	if err != nil {
		return false, err
	}
	if contacts > 0 {
		return true, nil
	}

	pkgs, err := s.ActivePackageRefCount(locationnum)
	if err != nil {
		return false, err
	}
	return pkgs > 0, nil
}

const packageColumns = `pkgnum, custnum, locationnum, main_pkgnum,
	one_time_charge, invoiced, start_date, setup_date, cancel_date`

func scanPackage(row rowScanner) (*Package, error) {
	var (
		p                     Package
		custnum, locationnum  sql.NullInt64
		start, setup, cancel  sql.NullString
	)
	err := row.Scan(&p.Pkgnum, &custnum, &locationnum, &p.MainPkgnum,
		&p.OneTimeCharge, &p.Invoiced, &start, &setup, &cancel)
	if err != nil {
		return nil, err
	}

	p.Custnum = custnum.Int64
	p.Locationnum = locationnum.Int64
	for _, pair := range []struct {
		raw  sql.NullString
		dest **time.Time
	}{{start, &p.StartDate}, {setup, &p.SetupDate}, {cancel, &p.CancelDate}} {
		if pair.raw.Valid && pair.raw.String != "" {
			t, err := time.Parse(time.RFC3339, pair.raw.String)
			if err != nil {
				return nil, errors.Wrapf(err, "bad date on package %d", p.Pkgnum)
			}
			*pair.dest = &t
		}
	}
	return &p, nil
}

// GetPackage fetches a package by primary key.
func (s *Store) GetPackage(pkgnum int64) (*Package, error) {
	row := s.q.QueryRow(`SELECT `+packageColumns+` FROM packages WHERE pkgnum = ?`, pkgnum)

	p, err := scanPackage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("package %d", pkgnum)
		}
		return nil, errors.Wrapf(err, "failed to get package %d", pkgnum)
	}
	return p, nil
}

// MovablePackages lists the packages eligible to follow a location move:
// uncancelled, not supplemental, and not one-time charges that have
// already been invoiced.
func (s *Store) MovablePackages(locationnum int64) ([]*Package, error) {
	rows, err := s.q.Query(`
		SELECT `+packageColumns+` FROM packages
		WHERE locationnum = ?
			AND cancel_date IS NULL
			AND main_pkgnum = 0
			AND NOT (one_time_charge = 1 AND invoiced = 1)
		ORDER BY pkgnum
	`, locationnum)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list movable packages")
	}
	defer rows.Close()

	var pkgs []*Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan package")
		}
		pkgs = append(pkgs, p)
	}
	return pkgs, rows.Err()
}

// UpdatePackageLocation reassigns a package to a new service location.
// Billing dates are untouched.
func (s *Store) UpdatePackageLocation(pkgnum, locationnum int64) error {
	res, err := s.q.Exec(`UPDATE packages SET locationnum = ? WHERE pkgnum = ?`, locationnum, pkgnum)
	if err != nil {
		return errors.Wrapf(err, "failed to move package %d", pkgnum)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if n == 0 {
		return errors.NewNotFoundError("package %d", pkgnum)
	}
	return nil
}

// InsertAudit appends one before/after audit entry for a location field.
func (s *Store) InsertAudit(a *AuditRecord) error {
	res, err := s.q.Exec(`
		INSERT INTO location_audit (locationnum, field, old_value, new_value, job, changed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.Locationnum, a.Field, a.OldValue, a.NewValue, a.Job, a.ChangedAt.Format(time.RFC3339))
	if err != nil {
		return errors.Wrap(err, "failed to insert audit record")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to read inserted auditnum")
	}
	a.Auditnum = id
	return nil
}

// ListMissingCoordinates returns enabled locations with no coordinates,
// oldest first. The coordinate backfill job feeds on this; a completed
// row stops matching, so restarts naturally resume.
func (s *Store) ListMissingCoordinates(limit int) ([]*Location, error) {
	rows, err := s.q.Query(`
		SELECT `+locationColumns+` FROM locations
		WHERE latitude IS NULL AND longitude IS NULL AND disabled = 0
		ORDER BY locationnum
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list locations missing coordinates")
	}
	defer rows.Close()

	return collectLocations(rows)
}

// ListUnclean returns enabled locations not yet address-standardized.
func (s *Store) ListUnclean(limit int) ([]*Location, error) {
	rows, err := s.q.Query(`
		SELECT `+locationColumns+` FROM locations
		WHERE addr_clean = 0 AND disabled = 0
		ORDER BY locationnum
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list unstandardized locations")
	}
	defer rows.Close()

	return collectLocations(rows)
}

func collectLocations(rows *sql.Rows) ([]*Location, error) {
	var locs []*Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan location")
		}
		locs = append(locs, loc)
	}
	return locs, rows.Err()
}

// UpdateCoordinates writes geocoded coordinates for one location and
// marks them as automatically derived.
func (s *Store) UpdateCoordinates(locationnum int64, lat, lon float64) error {
	_, err := s.q.Exec(`
		UPDATE locations SET latitude = ?, longitude = ?, coord_auto = 1
		WHERE locationnum = ?
	`, lat, lon, locationnum)
	if err != nil {
		return errors.Wrapf(err, "failed to update coordinates for location %d", locationnum)
	}
	return nil
}

// UpdateCensus writes a refreshed census tract and year for one location.
func (s *Store) UpdateCensus(locationnum int64, tract string, year int) error {
	_, err := s.q.Exec(`
		UPDATE locations SET censustract = ?, censusyear = ?
		WHERE locationnum = ?
	`, tract, nullYear(year), locationnum)
	if err != nil {
		return errors.Wrapf(err, "failed to update census tract for location %d", locationnum)
	}
	return nil
}
