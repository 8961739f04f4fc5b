package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joacominatel/bqpipe/internal/frame"
	"github.com/joacominatel/bqpipe/internal/warehouse"
)

func TestCreateTableStatements(t *testing.T) {
	stmts, err := createTableStatements(warehouse.TableRef{Dataset: "analytics", Table: "events"}, warehouse.Schema{
		{Name: "id", Type: warehouse.TypeInteger, Mode: warehouse.ModeRequired},
		{Name: "note", Type: warehouse.TypeString, Mode: warehouse.ModeNullable, Description: "Free-form, it's text"},
		{Name: "created_at", Type: warehouse.TypeTimestamp, Mode: warehouse.ModeRequired},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		`CREATE TABLE "analytics"."events" ("id" bigint NOT NULL, "note" text, "created_at" timestamptz NOT NULL)`,
		`COMMENT ON COLUMN "analytics"."events"."note" IS 'Free-form, it''s text'`,
	}, stmts)

	_, err = createTableStatements(warehouse.TableRef{Table: "x"}, nil)
	assert.ErrorIs(t, err, warehouse.ErrInvalidSchema)
}

func TestFieldTypeAndKindMapping(t *testing.T) {
	assert.Equal(t, warehouse.TypeInteger, fieldType("int4"))
	assert.Equal(t, warehouse.TypeDatetime, fieldType("timestamp"))
	assert.Equal(t, warehouse.TypeJSON, fieldType("jsonb"))
	assert.Equal(t, warehouse.TypeString, fieldType("uuid"))

	assert.Equal(t, frame.KindInt64, kindForOID(pgtype.Int4OID))
	assert.Equal(t, frame.KindFloat64, kindForOID(pgtype.NumericOID))
	assert.Equal(t, frame.KindDate, kindForOID(pgtype.DateOID))
	assert.Equal(t, frame.KindString, kindForOID(pgtype.UUIDOID))
}

func TestFrameValue(t *testing.T) {
	v, err := frameValue(frame.KindInt64, int32(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	var n pgtype.Numeric
	require.NoError(t, n.Scan("12.5"))
	v, err = frameValue(frame.KindFloat64, n)
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)

	v, err = frameValue(frame.KindString, [16]byte{0x12, 0x34, 0x56, 0x78, 0x12, 0x34, 0x56, 0x78, 0x12, 0x34, 0x56, 0x78, 0x12, 0x34, 0x56, 0x78})
	require.NoError(t, err)
	assert.Equal(t, "12345678-1234-5678-1234-567812345678", v)

	v, err = frameValue(frame.KindString, map[string]any{"a": 1.0})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, v)

	local := time.Date(2024, 1, 2, 3, 0, 0, 0, time.FixedZone("X", 3600))
	v, err = frameValue(frame.KindTimestamp, local)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 2, 0, 0, 0, time.UTC), v)

	v, err = frameValue(frame.KindString, pgtype.Time{Microseconds: int64(90*time.Minute/time.Microsecond) + 500000, Valid: true})
	require.NoError(t, err)
	assert.Equal(t, "01:30:00.5", v)
}

func TestDriver_NotConnected(t *testing.T) {
	d := New("postgres://localhost/db", nil)
	assert.Equal(t, "postgres", d.Name())
	_, err := d.ListDatasets(context.Background())
	assert.ErrorIs(t, err, warehouse.ErrNotConnected)
	_, err = d.Load(context.Background(), warehouse.TableRef{Table: "t"}, &frame.Frame{}, warehouse.LoadOptions{})
	assert.ErrorIs(t, err, warehouse.ErrNotConnected)
}

func TestDriver_ConnectBadDSN(t *testing.T) {
	err := New("postgres://user@host:notaport/db", nil).Connect(context.Background())
	assert.ErrorContains(t, err, "parse dsn")
}
