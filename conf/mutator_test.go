package conf

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tallytest "github.com/tallybill/tally/internal/testing"
)

func TestSetIdempotent(t *testing.T) {
	conn := tallytest.CreateTestDB(t)
	r := NewResolver(conn, "", nil)
	m := NewMutator(conn, r, nil)

	require.NoError(t, m.Set("currency", "USD", 7))
	require.NoError(t, m.Set("currency", "USD", 7))

	var count int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM conf WHERE name = 'currency' AND agentnum = 7").Scan(&count))
	assert.Equal(t, 1, count, "repeated set must leave exactly one entry per scope triple")

	v, err := r.Value("currency", 7)
	require.NoError(t, err)
	assert.Equal(t, "USD", v)
}

func TestSetStripsNUL(t *testing.T) {
	conn := tallytest.CreateTestDB(t)
	r := NewResolver(conn, "", nil)
	m := NewMutator(conn, r, nil)

	require.NoError(t, m.Set("company_name", "Acme\x00 Billing", 0))

	v, err := r.Value("company_name", 0)
	require.NoError(t, err)
	assert.Equal(t, "Acme Billing", v)
}

func TestSetBinaryRoundTrip(t *testing.T) {
	conn := tallytest.CreateTestDB(t)
	r := NewResolver(conn, "", nil)
	m := NewMutator(conn, r, nil)

	original := []byte("line1\nline2\n\xff\xfe\x00binary")
	require.NoError(t, m.SetBinary("logo", original, 0))

	decoded, err := r.BinaryValue("logo", 0)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestBinaryValueAbsent(t *testing.T) {
	conn := tallytest.CreateTestDB(t)
	r := NewResolver(conn, "", nil)

	decoded, err := r.BinaryValue("no_logo", 0)
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestSetUpdatesCacheWithoutRoundTrip(t *testing.T) {
	conn := tallytest.CreateTestDB(t)
	r := NewResolver(conn, "", nil)
	m := NewMutator(conn, r, nil)

	require.NoError(t, m.Set("currency", "USD", 0))
	v, err := r.Value("currency", 0)
	require.NoError(t, err)
	assert.Equal(t, "USD", v)

	// The set writes through to the cache, so the fresh value is visible
	// even though the old one was already cached.
	require.NoError(t, m.Set("currency", "EUR", 0))
	v, err = r.Value("currency", 0)
	require.NoError(t, err)
	assert.Equal(t, "EUR", v)
}

func TestDeleteAbsentIsNoOp(t *testing.T) {
	conn := tallytest.CreateTestDB(t)
	r := NewResolver(conn, "", nil)
	m := NewMutator(conn, r, nil)

	require.NoError(t, m.Delete("never_existed", 0))
}

func TestDeleteCachesAbsence(t *testing.T) {
	conn := tallytest.CreateTestDB(t)
	r := NewResolver(conn, "", nil)
	m := NewMutator(conn, r, nil)

	require.NoError(t, m.Set("currency", "USD", 0))
	require.NoError(t, m.Delete("currency", 0))

	e, err := r.Resolve("currency", 0, false)
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestTouchSetsUnlessOverridden(t *testing.T) {
	conn := tallytest.CreateTestDB(t)
	r := NewResolver(conn, "", nil)
	m := NewMutator(conn, r, nil)

	// Plain touch turns the key on at the given scope.
	require.NoError(t, m.Touch("invoice_email", 7))
	b, err := r.Bool("invoice_email", 7)
	require.NoError(t, err)
	assert.True(t, b)

	// Touching an already-truthy key is a no-op.
	require.NoError(t, m.Touch("invoice_email", 7))
	var count int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM conf WHERE name = 'invoice_email'").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestTouchDeletesAgentEntryUnderGlobalZero(t *testing.T) {
	conn := tallytest.CreateTestDB(t)
	r := NewResolver(conn, "", nil)
	m := NewMutator(conn, r, nil)

	// Global explicit "0", plus a stale agent-scope entry.
	require.NoError(t, m.Set("invoice_email", "0", 0))
	require.NoError(t, m.Set("invoice_email", "0", 7))

	// Touch removes the agent entry so the global negative governs.
	require.NoError(t, m.Touch("invoice_email", 7))

	var count int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM conf WHERE name = 'invoice_email' AND agentnum = 7").Scan(&count))
	assert.Zero(t, count)
}

func TestDeleteBoolWritesOverrideUnderTruthyGlobal(t *testing.T) {
	conn := tallytest.CreateTestDB(t)
	r := NewResolver(conn, "", nil)
	m := NewMutator(conn, r, nil)

	require.NoError(t, m.Set("emailinvoiceonly", "", 0))
	require.NoError(t, m.DeleteBool("emailinvoiceonly", 7))

	b, err := r.Bool("emailinvoiceonly", 7)
	require.NoError(t, err)
	assert.False(t, b, "agent 7 sees the explicit override")

	b, err = r.Bool("emailinvoiceonly", 9)
	require.NoError(t, err)
	assert.True(t, b, "other agents still see the global default")
}

func TestDeleteBoolGlobalJustDeletes(t *testing.T) {
	conn := tallytest.CreateTestDB(t)
	r := NewResolver(conn, "", nil)
	m := NewMutator(conn, r, nil)

	require.NoError(t, m.Set("emailinvoiceonly", "", 0))
	require.NoError(t, m.DeleteBool("emailinvoiceonly", 0))

	var count int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM conf WHERE name = 'emailinvoiceonly'").Scan(&count))
	assert.Zero(t, count)
}

func TestSetFailsLoudlyOnStoreError(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT confnum").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	r := NewResolver(mockDB, "", nil)
	m := NewMutator(mockDB, r, nil)

	err = m.Set("currency", "USD", 0)
	require.Error(t, err, "store failures must surface, never be swallowed")
	require.NoError(t, mock.ExpectationsWereMet())
}
