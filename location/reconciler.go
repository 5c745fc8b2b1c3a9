package location

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/tallybill/tally/conf"
	"github.com/tallybill/tally/db"
	"github.com/tallybill/tally/errors"
	"github.com/tallybill/tally/logger"
)

// Reconciler resolves proposed locations against existing ones and keeps
// dependent entities consistent when locations consolidate or move.
// Every multi-step mutation runs under one transaction: either every
// step commits or none do.
type Reconciler struct {
	conn      *sql.DB
	conf      *conf.Resolver
	validator *Validator
	exporters *ExporterRegistry
	log       *zap.SugaredLogger
}

// NewReconciler creates a reconciler. The exporter registry may be empty
// but not nil.
func NewReconciler(conn *sql.DB, c *conf.Resolver, v *Validator, exporters *ExporterRegistry, log *zap.SugaredLogger) *Reconciler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Reconciler{
		conn:      conn,
		conf:      c,
		validator: v,
		exporters: exporters,
		log:       log,
	}
}

// activeExporters reads the conf-driven list of exporter names, one per
// line.
func (r *Reconciler) activeExporters() ([]string, error) {
	return r.conf.Values(ConfLocationExports, 0)
}

// mergeDescriptive overwrites existing's descriptive fields with any
// present, differing values from proposed. The proposed location's
// descriptive data wins. Reports whether anything changed.
func mergeDescriptive(existing, proposed *Location) bool {
	changed := false

	for _, f := range []string{"locationname", "geocode", "censustract", "district"} {
		v := proposed.FieldValue(f)
		if v != "" && v != existing.FieldValue(f) {
			existing.SetFieldValue(f, v)
			changed = true
		}
	}

	if proposed.HasCoordinates() {
		if !existing.HasCoordinates() ||
			*existing.Latitude != *proposed.Latitude ||
			*existing.Longitude != *proposed.Longitude {
			lat, lon := *proposed.Latitude, *proposed.Longitude
			existing.Latitude = &lat
			existing.Longitude = &lon
			existing.CoordAuto = proposed.CoordAuto
			changed = true
		}
	}

	if proposed.Censusyear != 0 && proposed.Censusyear != existing.Censusyear {
		existing.Censusyear = proposed.Censusyear
		changed = true
	}
	if proposed.Incorporated && !existing.Incorporated {
		existing.Incorporated = true
		changed = true
	}
	if proposed.AddrClean && !existing.AddrClean {
		existing.AddrClean = true
		changed = true
	}

	return changed
}

// FindOrInsert resolves a proposed location against existing ones by
// essential-field identity. On a match, descriptive drift merges into
// the existing record and the full resulting state (including identity)
// is copied back onto loc; on no match, loc is inserted as new. Calling
// twice with equivalent essential fields always yields the same
// location identity.
func (r *Reconciler) FindOrInsert(ctx context.Context, loc *Location) error {
	if err := r.validator.Normalize(loc); err != nil {
		return err
	}
	if err := r.validator.Validate(ctx, loc); err != nil {
		return err
	}

	exports, err := r.activeExporters()
	if err != nil {
		return err
	}

	return db.WithTx(r.conn, func(tx *sql.Tx) error {
		return r.findOrInsertTx(tx, exports, loc)
	})
}

// findOrInsertTx is the transaction-scoped body of FindOrInsert, shared
// with MoveTo. loc must already be normalized and validated.
func (r *Reconciler) findOrInsertTx(tx *sql.Tx, exports []string, loc *Location) error {
	store := NewStore(tx)

	existing, err := store.FindByIdentity(loc)
	if err != nil && !errors.IsNotFoundError(err) {
		return err
	}

	if existing != nil {
		before := *existing
		if mergeDescriptive(existing, loc) {
			if err := store.UpdateLocation(existing); err != nil {
				return err
			}
			if err := r.exporters.runReplaceHooks(tx, exports, &before, existing); err != nil {
				return err
			}
			r.log.Debugw("Merged descriptive drift into existing location",
				logger.FieldLocation, existing.Locationnum)
		}
		*loc = *existing
		return nil
	}

	if err := store.InsertLocation(loc); err != nil {
		return err
	}
	if err := r.exporters.runInsertHooks(tx, exports, loc); err != nil {
		return err
	}
	r.log.Debugw("Inserted new location", logger.FieldLocation, loc.Locationnum)
	return nil
}

// Replace persists changes to an existing location, enforcing the
// physical-identity freeze: once a customer-owned location is in active
// use, address1/address2/city/state/zip/country cannot change across
// replaces unless overrideImmutable is set. Violations name the
// offending field and leave the stored record untouched.
func (r *Reconciler) Replace(ctx context.Context, loc *Location, overrideImmutable bool) error {
	if err := r.validator.Normalize(loc); err != nil {
		return err
	}
	if err := r.validator.Validate(ctx, loc); err != nil {
		return err
	}

	exports, err := r.activeExporters()
	if err != nil {
		return err
	}

	return db.WithTx(r.conn, func(tx *sql.Tx) error {
		store := NewStore(tx)

		old, err := store.GetLocation(loc.Locationnum)
		if err != nil {
			return err
		}

		if old.Custnum != 0 && !overrideImmutable {
			inUse, err := store.InUse(old.Locationnum)
			if err != nil {
				return err
			}
			if inUse {
				for _, f := range ImmutableFields {
					if old.FieldValue(f) != loc.FieldValue(f) {
						return &ImmutabilityViolation{Field: f}
					}
				}
			}
		}

		if err := store.UpdateLocation(loc); err != nil {
			return err
		}
		return r.exporters.runReplaceHooks(tx, exports, old, loc)
	})
}

// MovePkgs computes the set of packages that would follow a move away
// from the location: active, non-supplemental, and excluding one-time
// charges already invoiced.
func (r *Reconciler) MovePkgs(loc *Location) ([]*Package, error) {
	return NewStore(r.conn).MovablePackages(loc.Locationnum)
}

// MoveTo relocates billing from old to dest: inserts dest if it has no
// identity yet, reassigns the movable (or caller-supplied) package set,
// and disables old if nothing references it afterwards. The whole move
// is atomic; any failure rolls everything back, including the insert of
// dest when it was this call's doing.
func (r *Reconciler) MoveTo(ctx context.Context, old, dest *Location, overridePkgnums []int64) error {
	if err := r.validator.Normalize(dest); err != nil {
		return err
	}

	// The common "minor edit" case: same place, nothing to move.
	if IdentityEqual(old, dest) {
		if dest.Locationnum == 0 {
			dest.Locationnum = old.Locationnum
		}
		return nil
	}

	if dest.Locationnum == 0 {
		if err := r.validator.Validate(ctx, dest); err != nil {
			return errors.Wrap(err, "inserting new location")
		}
	}

	exports, err := r.activeExporters()
	if err != nil {
		return err
	}

	return db.WithTx(r.conn, func(tx *sql.Tx) error {
		store := NewStore(tx)

		if dest.Locationnum == 0 {
			if err := r.findOrInsertTx(tx, exports, dest); err != nil {
				return errors.Wrap(err, "inserting new location")
			}
		}

		pkgs, err := r.packagesToMove(store, old, overridePkgnums)
		if err != nil {
			return err
		}

		for _, p := range pkgs {
			if err := store.UpdatePackageLocation(p.Pkgnum, dest.Locationnum); err != nil {
				return err
			}
		}

		inUse, err := store.InUse(old.Locationnum)
		if err != nil {
			return err
		}
		if !inUse {
			if err := store.DisableLocation(old.Locationnum); err != nil {
				return err
			}
			old.Disabled = true
		}

		r.log.Infow("Moved location",
			"from", old.Locationnum,
			"to", dest.Locationnum,
			"packages", len(pkgs),
			"source_disabled", !inUse,
		)
		return nil
	})
}

// packagesToMove validates a caller-supplied override list or computes
// the default movable set. Any ineligible package aborts the whole move.
func (r *Reconciler) packagesToMove(store *Store, old *Location, overridePkgnums []int64) ([]*Package, error) {
	if overridePkgnums == nil {
		return store.MovablePackages(old.Locationnum)
	}

	pkgs := make([]*Package, 0, len(overridePkgnums))
	for _, pkgnum := range overridePkgnums {
		p, err := store.GetPackage(pkgnum)
		if err != nil {
			return nil, err
		}
		switch {
		case p.ChargedOneTime():
			return nil, &ConflictError{Pkgnum: pkgnum, Reason: "already charged as a one-time charge"}
		case p.Supplemental():
			return nil, &ConflictError{Pkgnum: pkgnum, Reason: "supplemental packages move with their parent"}
		case p.Cancelled():
			return nil, &ConflictError{Pkgnum: pkgnum, Reason: "cancelled"}
		case p.Locationnum != old.Locationnum:
			return nil, &ConflictError{Pkgnum: pkgnum, Reason: "not billed to the source location"}
		}
		pkgs = append(pkgs, p)
	}
	return pkgs, nil
}

// DisableIfUnused retires the location if no customer billing/service
// address, contact, or active package references it. Disabling itself
// never fails validation by policy.
func (r *Reconciler) DisableIfUnused(loc *Location) error {
	return db.WithTx(r.conn, func(tx *sql.Tx) error {
		store := NewStore(tx)

		inUse, err := store.InUse(loc.Locationnum)
		if err != nil {
			return err
		}
		if inUse {
			return nil
		}

		if err := store.DisableLocation(loc.Locationnum); err != nil {
			return err
		}
		loc.Disabled = true
		return nil
	})
}
