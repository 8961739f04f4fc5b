package cli

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/joacominatel/bqpipe/internal/app"
	"github.com/joacominatel/bqpipe/internal/config"
	"github.com/joacominatel/bqpipe/internal/frame"
	"github.com/joacominatel/bqpipe/internal/warehouse"
	"github.com/joacominatel/bqpipe/internal/warehouse/warehousetest"
)

var events = warehouse.TableRef{Dataset: "analytics", Table: "events"}

type harness struct {
	dir        string
	configPath string
	driver     *warehousetest.Driver
	profile    config.Profile
	secret     string
	browsed    bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	keyring.MockInit()
	t.Setenv("BQPIPE_PROFILE", "")
	t.Setenv("BQPIPE_LOG_LEVEL", "")

	dir := t.TempDir()
	h := &harness{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		driver:     warehousetest.New(),
	}

	cfg := &config.Config{}
	require.NoError(t, cfg.AddProfile(config.Profile{Name: "dev", Warehouse: config.WarehouseBigQuery, Project: "demo"}))
	require.NoError(t, config.Save(cfg, h.configPath))

	data, err := frame.ReadCSV(strings.NewReader("account_id,score\n101,0.5\n102,\n"), frame.CSVOptions{})
	require.NoError(t, err)
	h.driver.AddTable(events, warehouse.Schema{
		{Name: "account_id", Type: warehouse.TypeInteger, Mode: warehouse.ModeRequired},
		{Name: "score", Type: "FLOAT", Mode: warehouse.ModeNullable},
	}, data)
	return h
}

// run executes the command line and returns stdout and stderr.
func (h *harness) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	opts := defaultOptions()
	opts.newDriver = func(p config.Profile, _ *slog.Logger) (warehouse.Driver, error) {
		h.profile = p
		return h.driver, nil
	}
	opts.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	opts.readPassword = func(*cobra.Command) (string, error) { return h.secret, nil }
	opts.runTUI = func(context.Context, *app.Service) error {
		h.browsed = true
		return nil
	}

	root := newRootCmd(opts)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", h.configPath, "--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func (h *harness) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadTable(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run(t, "", "read", "table", "events", "-o", "csv", "--limit", "1")
	require.NoError(t, err)
	assert.Equal(t, "account_id,score\n101,0.5\n", out)
	assert.Equal(t, "dev", h.profile.Name)
	require.Len(t, h.driver.Fetches, 1)
	assert.Equal(t, 1, h.driver.Fetches[0].Limit)

	out, _, err = h.run(t, "", "read", "table", "analytics.events", "-o", "json", "--where", "score IS NULL")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"account_id":101,"score":0.5},{"account_id":102,"score":null}]`, out)
	assert.Equal(t, "score IS NULL", h.driver.Fetches[1].Where)

	out, _, err = h.run(t, "", "read", "table", "events")
	require.NoError(t, err)
	assert.Contains(t, out, "account_id")
	assert.Contains(t, out, "NULL")
	assert.Contains(t, out, "(2 rows)")
}

func TestReadTable_ToFile(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(h.dir, "events.ndjson")

	out, stderr, err := h.run(t, "", "read", "table", "events", "--out", path)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, stderr, "Wrote 2 rows")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"account_id\":101,\"score\":0.5}\n{\"account_id\":102,\"score\":null}\n", string(data))
}

func TestReadTable_NotFound(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run(t, "", "read", "table", "missing")
	assert.ErrorIs(t, err, warehouse.ErrNotFound)
}

func TestReadSQL(t *testing.T) {
	h := newHarness(t)
	h.driver.QueryResult = mustFrame(t, "n\n1\n")

	out, _, err := h.run(t, "SELECT 1 AS n\n", "read", "sql", "-", "-o", "csv")
	require.NoError(t, err)
	assert.Equal(t, "n\n1\n", out)
	assert.Equal(t, []string{"SELECT 1 AS n"}, h.driver.Queries)

	file := h.writeFile(t, "q.sql", "SELECT 2")
	_, _, err = h.run(t, "", "read", "sql", "--file", file, "-o", "ndjson")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 2", h.driver.Queries[1])

	_, _, err = h.run(t, "", "read", "sql")
	assert.EqualError(t, err, "no query given")

	_, _, err = h.run(t, "", "read", "sql", "SELECT 1", "--file", file)
	assert.EqualError(t, err, "pass either a query or --file, not both")

	h.driver.QueryErr = errors.New("syntax error")
	_, _, err = h.run(t, "", "read", "sql", "SELEC 1")
	var queryErr *app.ErrQuery
	assert.ErrorAs(t, err, &queryErr)
}

func TestWrite_AppendFromFile(t *testing.T) {
	h := newHarness(t)
	input := h.writeFile(t, "more.csv", "account_id,score\n103,1.5\n")

	out, _, err := h.run(t, "", "write", "events", "--input", input)
	require.NoError(t, err)
	assert.Equal(t, "Appended 1 rows (25 B read) into analytics.events in 0s\n", out)
	assert.Equal(t, 3, h.driver.Table(events).Data.NumRows())
}

func TestWrite_CreateFromStdin(t *testing.T) {
	h := newHarness(t)
	clicks := warehouse.TableRef{Dataset: "analytics", Table: "clicks"}

	out, _, err := h.run(t, "url;n\n/home;3\n/pricing;NA\n", "write", "clicks",
		"--input", "-", "--create", "--delimiter", ";", "--null-value", "NA")
	require.NoError(t, err)
	assert.Contains(t, out, "Created table and wrote 2 rows")

	table := h.driver.Table(clicks)
	require.NotNil(t, table)
	assert.Equal(t, []string{"url", "n", "created_at"}, table.Schema.Names())
	assert.Nil(t, table.Data.Column("n").Values[1])
}

func TestWrite_Truncate(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run(t, "account_id,score\n200,9\n", "write", "events", "-i", "-", "--mode", "truncate", "--pull-schema")
	require.NoError(t, err)
	assert.Contains(t, out, "Replaced table contents with 1 rows")
	assert.Equal(t, 1, h.driver.Table(events).Data.NumRows())
	assert.Equal(t, frame.KindFloat64, h.driver.Loads[0].Data.Column("score").Kind)
}

func TestWrite_PulledSchemaKeepsLeadingZeros(t *testing.T) {
	h := newHarness(t)
	customers := warehouse.TableRef{Dataset: "analytics", Table: "customers"}
	h.driver.AddTable(customers, warehouse.Schema{{Name: "ZIP", Type: warehouse.TypeString, Mode: warehouse.ModeNullable}}, nil)

	_, _, err := h.run(t, "zip\n01234\n", "write", "customers", "-i", "-", "--pull-schema")
	require.NoError(t, err)
	require.Len(t, h.driver.Loads, 1)
	assert.Equal(t, []any{"01234"}, h.driver.Loads[0].Data.Column("ZIP").Values)
}

func TestWrite_SchemaFileKeepsLeadingZeros(t *testing.T) {
	h := newHarness(t)
	schema := h.writeFile(t, "schema.yaml", "- name: zip\n  field_type: string\n")

	_, _, err := h.run(t, "Zip\n01234\n", "write", "customers", "-i", "-", "--create", "--schema", schema)
	require.NoError(t, err)
	require.Len(t, h.driver.Loads, 1)
	assert.Equal(t, []any{"01234"}, h.driver.Loads[0].Data.Column("zip").Values)
}

func TestAcceptCapitalsHelpMentionsSnowflake(t *testing.T) {
	h := newHarness(t)
	for _, args := range [][]string{{"write", "--help"}, {"create", "--help"}, {"read", "table", "--help"}} {
		out, _, err := h.run(t, "", args...)
		require.NoError(t, err)
		assert.Contains(t, out, "ignored on Snowflake", args)
	}
}

func TestWrite_FlagErrors(t *testing.T) {
	h := newHarness(t)
	schema := h.writeFile(t, "schema.yaml", "- name: id\n  field_type: integer\n")

	_, _, err := h.run(t, "", "write", "events")
	assert.EqualError(t, err, "--input is required")

	_, _, err = h.run(t, "", "write", "events", "-i", "-", "--schema", schema, "--pull-schema")
	assert.EqualError(t, err, "--schema and --pull-schema are mutually exclusive")

	_, _, err = h.run(t, "", "write", "events", "-i", "-", "--delimiter", "ab")
	assert.EqualError(t, err, `delimiter "ab" must be a single character`)

	_, _, err = h.run(t, "id\n1\n", "write", "nope", "-i", "-")
	var writeErr *app.ErrWrite
	require.ErrorAs(t, err, &writeErr)
	assert.Empty(t, h.driver.Loads)
}

func TestCreate(t *testing.T) {
	h := newHarness(t)
	schema := h.writeFile(t, "schema.yaml", `- name: experiment_name
  field_type: string
  mode: required
  description: The name of the experiment
- name: account_id
  field_type: integer
`)

	out, _, err := h.run(t, "", "create", "raw.sample", "--schema", schema)
	require.NoError(t, err)
	assert.Equal(t, "Created table raw.sample\n", out)

	table := h.driver.Table(warehouse.TableRef{Dataset: "raw", Table: "sample"})
	require.NotNil(t, table)
	assert.Equal(t, []string{"experiment_name", "account_id", "created_at"}, table.Schema.Names())

	_, _, err = h.run(t, "", "create", "raw.sample", "--schema", schema)
	assert.ErrorContains(t, err, "already exists")

	_, _, err = h.run(t, "", "create", "raw.other")
	assert.EqualError(t, err, "--schema is required")
}

func TestMetadata(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run(t, "", "metadata", "datasets", "-o", "csv")
	require.NoError(t, err)
	assert.Equal(t, "dataset\nanalytics\n", out)

	out, _, err = h.run(t, "", "meta", "tables", "-o", "csv")
	require.NoError(t, err)
	assert.Equal(t, "table\nevents\n", out)

	out, _, err = h.run(t, "", "metadata", "schema", "analytics", "events", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"name": "account_id", "field_type": "integer", "mode": "required"},
		{"name": "score", "field_type": "float", "mode": "nullable"}
	]`, out)

	out, _, err = h.run(t, "", "metadata", "schema", "events")
	require.NoError(t, err)
	assert.Contains(t, out, "REQUIRED")
	assert.Contains(t, out, "analytics.events: 2 rows")

	_, _, err = h.run(t, "", "metadata", "tables", "nope")
	assert.ErrorIs(t, err, warehouse.ErrNotFound)
}

func TestSchemaOutputRoundTrips(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run(t, "", "metadata", "schema", "events", "-o", "json")
	require.NoError(t, err)
	path := h.writeFile(t, "events.json", out)

	schema, err := warehouse.LoadSchemaFile(path)
	require.NoError(t, err)
	assert.Equal(t, h.driver.Table(events).Schema, schema)
}

func TestSchemaOutputRoundTrips_WithAuditColumn(t *testing.T) {
	h := newHarness(t)
	clicks := warehouse.TableRef{Dataset: "analytics", Table: "clicks"}

	_, _, err := h.run(t, "url,n\n/home,3\n", "write", "clicks", "-i", "-", "--create")
	require.NoError(t, err)

	out, _, err := h.run(t, "", "metadata", "schema", "clicks", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"created_at"`)
	path := h.writeFile(t, "clicks.json", out)

	_, _, err = h.run(t, "url,n\n/docs,4\n", "write", "clicks", "-i", "-", "--schema", path)
	require.NoError(t, err)
	assert.Equal(t, 2, h.driver.Table(clicks).Data.NumRows())
	assert.Equal(t, []string{"url", "n", "created_at"}, h.driver.Loads[1].Data.Names())

	out, _, err = h.run(t, "", "create", "clicks_copy", "--schema", path)
	require.NoError(t, err)
	assert.Equal(t, "Created table analytics.clicks_copy\n", out)
	copied := h.driver.Table(warehouse.TableRef{Dataset: "analytics", Table: "clicks_copy"})
	require.NotNil(t, copied)
	assert.Equal(t, h.driver.Table(clicks).Schema, copied.Schema)

	conflicting := h.writeFile(t, "conflict.yaml", "- name: url\n  field_type: string\n- name: created_at\n  field_type: string\n")
	_, _, err = h.run(t, "", "create", "clicks_bad", "--schema", conflicting)
	assert.ErrorIs(t, err, warehouse.ErrReservedColumn)
}

func TestSession(t *testing.T) {
	h := newHarness(t)
	h.driver.Info = warehouse.SessionInfo{User: "ETL", Role: "PUBLIC"}

	out, _, err := h.run(t, "", "session", "use", "--role", "loader", "--schema", "raw", "-o", "csv")
	require.NoError(t, err)
	assert.Contains(t, out, "role,LOADER\n")
	assert.Contains(t, out, "schema,RAW\n")
	assert.Contains(t, out, "database,\n")
	assert.Equal(t, []string{"ROLE LOADER", "SCHEMA RAW"}, h.driver.UseCalls)

	out, _, err = h.run(t, "", "session", "show", "-o", "csv")
	require.NoError(t, err)
	assert.Contains(t, out, "user,ETL\n")

	_, _, err = h.run(t, "", "session", "use")
	assert.ErrorContains(t, err, "nothing to change")
}

func TestProfiles(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run(t, "", "profiles", "add", "sf", "--warehouse", "Snowflake",
		"--account", "xy12345.eu-west-1", "--user", "ETL", "--auth", "key_pair",
		"--private-key-path", "/keys/rsa.p8", "--database", "ANALYTICS")
	require.NoError(t, err)
	assert.Equal(t, "Saved profile sf (snowflake://ETL@xy12345.eu-west-1/ANALYTICS)\n", out)

	_, _, err = h.run(t, "", "profiles", "add", "local", "--dsn", "postgresql://ana@db.local:5433/app")
	require.NoError(t, err)

	_, _, err = h.run(t, "", "profiles", "add", "bad", "--warehouse", "snowflake")
	assert.ErrorContains(t, err, "account is required")

	out, _, err = h.run(t, "", "profiles", "list", "-o", "csv")
	require.NoError(t, err)
	assert.Equal(t, "name,warehouse,target,default\n"+
		"dev,bigquery,bigquery://demo,true\n"+
		"sf,snowflake,snowflake://ETL@xy12345.eu-west-1/ANALYTICS,false\n"+
		"local,postgres,postgres://ana@db.local:5433/app,false\n", out)

	_, _, err = h.run(t, "", "profiles", "default", "local")
	require.NoError(t, err)

	cfg, err := config.Load(h.configPath)
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Preferences.DefaultProfile)
	local, err := cfg.Profile("local")
	require.NoError(t, err)
	assert.Equal(t, 5433, local.Port)
	assert.Empty(t, local.Auth)
	sf, err := cfg.Profile("sf")
	require.NoError(t, err)
	assert.Equal(t, config.AuthKeyPair, sf.Auth)

	// the default profile is used when --profile is not given
	_, _, err = h.run(t, "", "metadata", "datasets")
	require.NoError(t, err)
	assert.Equal(t, "local", h.profile.Name)
	assert.Equal(t, "postgresql://ana@db.local:5433/app", h.profile.DSN())

	_, _, err = h.run(t, "", "-p", "dev", "metadata", "datasets")
	require.NoError(t, err)
	assert.Equal(t, "dev", h.profile.Name)

	out, _, err = h.run(t, "", "profiles", "remove", "local")
	require.NoError(t, err)
	assert.Equal(t, "Removed profile local\n", out)
	cfg, err = config.Load(h.configPath)
	require.NoError(t, err)
	assert.False(t, cfg.HasProfile("local"))
}

func TestProfilesSecret(t *testing.T) {
	h := newHarness(t)
	h.secret = "s3cr3t"

	out, stderr, err := h.run(t, "", "profiles", "secret", "dev", "Password")
	require.NoError(t, err)
	assert.Equal(t, "Stored Password for dev in the keyring\n", out)
	assert.Contains(t, stderr, "Password for dev: ")

	stored, err := keyring.Get("bqpipe", "dev/password")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", stored)

	// BigQuery does not read a password from the keyring
	_, _, err = h.run(t, "", "metadata", "datasets")
	require.NoError(t, err)
	assert.Empty(t, h.profile.Password)

	// secrets are resolved into the profile handed to the driver
	_, _, err = h.run(t, "", "profiles", "add", "local", "--dsn", "postgresql://ana@db.local/app")
	require.NoError(t, err)
	_, _, err = h.run(t, "", "profiles", "secret", "local", "password")
	require.NoError(t, err)
	_, _, err = h.run(t, "", "-p", "local", "metadata", "datasets")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", h.profile.Password)

	_, _, err = h.run(t, "", "profiles", "secret", "nope", "password")
	assert.EqualError(t, err, `profile "nope" not found`)

	_, _, err = h.run(t, "", "profiles", "secret", "dev", "token")
	assert.ErrorContains(t, err, "unknown secret field")

	h.secret = ""
	_, _, err = h.run(t, "", "profiles", "secret", "dev", "password")
	assert.EqualError(t, err, "empty secret")
}

func TestConnectErrors(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run(t, "", "-p", "nope", "metadata", "datasets")
	var cfgErr *app.ErrConfig
	assert.ErrorAs(t, err, &cfgErr)

	h.driver.ConnectErr = errors.New("invalid_grant")
	_, _, err = h.run(t, "", "metadata", "datasets")
	var connErr *app.ErrConnection
	assert.ErrorAs(t, err, &connErr)

	empty := &harness{configPath: filepath.Join(t.TempDir(), "none.yaml"), driver: warehousetest.New()}
	_, _, err = empty.run(t, "", "metadata", "datasets")
	assert.ErrorContains(t, err, "no profiles configured")
}

func TestOutputFormatValidation(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run(t, "", "metadata", "datasets", "-o", "xml")
	assert.EqualError(t, err, `unsupported output format "xml": use table, csv, json or ndjson`)
}

func TestBrowse(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run(t, "", "browse")
	require.NoError(t, err)
	assert.True(t, h.browsed)
	assert.False(t, h.driver.Connected, "browse disconnects on exit")
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, formatCSV, formatForPath("out.CSV", formatJSON))
	assert.Equal(t, formatJSON, formatForPath("out.json", formatTable))
	assert.Equal(t, formatNDJSON, formatForPath("out.jsonl", formatCSV))
	assert.Equal(t, formatCSV, formatForPath("out.txt", formatTable))
	assert.Equal(t, formatNDJSON, formatForPath("out", formatNDJSON))
}

func TestPromptPassword_ReadsLine(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader("hunter2\r\nignored\n"))

	secret, err := promptPassword(cmd)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", secret)
}

func mustFrame(t *testing.T, csv string) *frame.Frame {
	t.Helper()
	f, err := frame.ReadCSV(strings.NewReader(csv), frame.CSVOptions{})
	require.NoError(t, err)
	return f
}
