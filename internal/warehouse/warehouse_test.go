package warehouse

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joacominatel/bqpipe/internal/frame"
)

func TestParseTableRef(t *testing.T) {
	ref, err := ParseTableRef("events", "analytics")
	require.NoError(t, err)
	assert.Equal(t, TableRef{Dataset: "analytics", Table: "events"}, ref)
	assert.Equal(t, "analytics.events", ref.String())

	ref, err = ParseTableRef(" raw.clicks ", "analytics")
	require.NoError(t, err)
	assert.Equal(t, TableRef{Dataset: "raw", Table: "clicks"}, ref)

	_, err = ParseTableRef("a.b.c", "")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
	_, err = ParseTableRef("  ", "")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestParseInsertMode(t *testing.T) {
	tests := []struct {
		in   string
		want InsertMode
		err  bool
	}{
		{in: "append", want: InsertAppend},
		{in: " TRUNCATE ", want: InsertTruncate},
		{in: "", want: InsertAppend},
		{in: "replace", err: true},
		{in: "upsert", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInsertMode(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, ErrInvalidInsertMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFieldType_Aliases(t *testing.T) {
	tests := map[string]FieldType{
		"int":           TypeInteger,
		"INT64":         TypeInteger,
		"Double":        TypeFloat,
		"number":        TypeNumeric,
		"varchar":       TypeString,
		"bool":          TypeBoolean,
		"timestamp_ntz": TypeDatetime,
		"variant":       TypeJSON,
		" date ":        TypeDate,
		"binary":        TypeBytes,
	}
	for in, want := range tests {
		got, err := ParseFieldType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFieldType("geography")
	assert.ErrorIs(t, err, ErrInvalidSchema)
}

func TestKindMappingRoundTrips(t *testing.T) {
	for _, k := range []frame.Kind{
		frame.KindString, frame.KindInt64, frame.KindFloat64, frame.KindBool,
		frame.KindTimestamp, frame.KindDate, frame.KindBytes,
	} {
		assert.Equal(t, k, KindForFieldType(FieldTypeForKind(k)), k.String())
	}
	assert.Equal(t, frame.KindFloat64, KindForFieldType(TypeNumeric))
	assert.Equal(t, frame.KindString, KindForFieldType(TypeJSON))
	assert.Equal(t, frame.KindTimestamp, KindForFieldType(TypeDatetime))
}

func TestInferSchema(t *testing.T) {
	name, _ := frame.NewColumn("experiment_name", frame.KindString, "a")
	n, _ := frame.NewColumn("n", frame.KindInt64, 1)
	at, _ := frame.NewColumn("seen_at", frame.KindTimestamp, time.Now())
	f, err := frame.New(name, n, at)
	require.NoError(t, err)

	want := Schema{
		{Name: "experiment_name", Type: TypeString, Mode: ModeNullable},
		{Name: "n", Type: TypeInteger, Mode: ModeNullable},
		{Name: "seen_at", Type: TypeTimestamp, Mode: ModeNullable},
	}
	if diff := cmp.Diff(want, InferSchema(f)); diff != "" {
		t.Errorf("InferSchema mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSchemaSpecs(t *testing.T) {
	schema, err := ParseSchemaSpecs([]FieldSpec{
		{Name: "Experiment_Name", FieldType: "string", Mode: "required", Description: "The experiment"},
		{Name: "score", FieldType: "float"},
	})
	require.NoError(t, err)

	want := Schema{
		{Name: "experiment_name", Type: TypeString, Mode: ModeRequired, Description: "The experiment"},
		{Name: "score", Type: TypeFloat, Mode: ModeNullable},
	}
	if diff := cmp.Diff(want, schema); diff != "" {
		t.Errorf("ParseSchemaSpecs mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, schema[0].Required())

	f, ok := schema.Field("SCORE")
	require.True(t, ok)
	assert.Equal(t, TypeFloat, f.Type)
	assert.Equal(t, []string{"experiment_name", "score"}, schema.Names())
}

func TestParseSchemaSpecs_ReportsEveryProblem(t *testing.T) {
	_, err := ParseSchemaSpecs([]FieldSpec{
		{Name: "a"},
		{Name: "b", FieldType: "geography"},
		{Name: "c", FieldType: "int", Mode: "repeated"},
		{Name: "d", FieldType: "int"},
		{Name: "D", FieldType: "int"},
		{Name: "1x", FieldType: "int"},
	})
	require.ErrorIs(t, err, ErrInvalidSchema)
	msg := err.Error()
	assert.Contains(t, msg, "column 0: name and field_type are required")
	assert.Contains(t, msg, `unknown field type "geography"`)
	assert.Contains(t, msg, `mode "repeated"`)
	assert.Contains(t, msg, `column "d": defined twice`)
	assert.Contains(t, msg, "column 5")
}

func TestLoadSchemaFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
- name: experiment_name
  field_type: string
  mode: required
  description: The name of the experiment
- name: started_on
  field_type: date
`), 0o600))

	schema, err := LoadSchemaFile(yamlPath)
	require.NoError(t, err)
	require.Len(t, schema, 2)
	assert.Equal(t, ModeRequired, schema[0].Mode)
	assert.Equal(t, TypeDate, schema[1].Type)

	jsonPath := filepath.Join(dir, "schema.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[{"name":"id","field_type":"INT64"}]`), 0o600))
	schema, err = LoadSchemaFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, Schema{{Name: "id", Type: TypeInteger, Mode: ModeNullable}}, schema)

	badPath := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badPath, []byte(`{`), 0o600))
	_, err = LoadSchemaFile(badPath)
	assert.ErrorIs(t, err, ErrInvalidSchema)
}

func TestSchemaSpecs(t *testing.T) {
	specs := SchemaSpecs(Schema{{Name: "id", Type: TypeInteger, Mode: ModeRequired}})
	assert.Equal(t, []FieldSpec{{Name: "id", FieldType: "integer", Mode: "required"}}, specs)
}

func TestValidateIdentifier(t *testing.T) {
	for _, ok := range []string{"events", "_tmp", "Events_2024", "col$1", "données"} {
		assert.NoError(t, ValidateIdentifier(ok), ok)
	}
	for _, bad := range []string{"", "1events", "$x", "a-b", "a b", "x`; DROP TABLE t; --", string(make([]byte, 256))} {
		assert.ErrorIs(t, ValidateIdentifier(bad), ErrInvalidIdentifier, bad)
	}
}

func TestDialectQuote(t *testing.T) {
	assert.Equal(t, "`ds`.`t`", Backtick.Quote("ds", "t"))
	assert.Equal(t, `"t"`, DoubleQuote.Quote("", "t"))
	assert.Equal(t, `"a""b"`, DoubleQuote.Quote(`a"b`))
	assert.Equal(t, `"PUBLIC"."EVENTS"`, UpperDoubleQuote.Quote("public", "events"))
}

func TestBuildSelect(t *testing.T) {
	ref := TableRef{Dataset: "analytics", Table: "events"}
	tests := []struct {
		name string
		opts FetchOptions
		want string
	}{
		{
			name: "all rows",
			want: "SELECT * FROM `analytics`.`events`",
		},
		{
			name: "fields where limit",
			opts: FetchOptions{Fields: []string{"id", " name "}, Where: "id > 3", Limit: 10},
			want: "SELECT `id`, `name` FROM `analytics`.`events` WHERE id > 3 LIMIT 10",
		},
		{
			name: "where keyword kept",
			opts: FetchOptions{Where: "  where id = 1"},
			want: "SELECT * FROM `analytics`.`events` where id = 1",
		},
		{
			name: "column named like keyword",
			opts: FetchOptions{Where: "whereabouts = 'x'"},
			want: "SELECT * FROM `analytics`.`events` WHERE whereabouts = 'x'",
		},
		{
			name: "raw select wins",
			opts: FetchOptions{Select: "* EXCEPT (created_at)", Fields: []string{"id"}, Limit: 0},
			want: "SELECT * EXCEPT (created_at) FROM `analytics`.`events`",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildSelect(Backtick, ref, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := BuildSelect(Backtick, ref, FetchOptions{Fields: []string{"id; DROP"}})
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
	_, err = BuildSelect(Backtick, TableRef{Dataset: "a-b", Table: "t"}, FetchOptions{})
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}
