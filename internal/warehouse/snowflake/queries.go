package snowflake

// SQL statements for Snowflake metadata and session introspection.
const (
	querySession = `
		SELECT CURRENT_USER(), CURRENT_ROLE(), CURRENT_WAREHOUSE(),
		       CURRENT_DATABASE(), CURRENT_SCHEMA(), CURRENT_REGION()`

	queryCurrentSchema = `SELECT CURRENT_SCHEMA()`

	queryListDatabases = `
		SELECT DATABASE_NAME
		FROM INFORMATION_SCHEMA.DATABASES
		ORDER BY DATABASE_NAME`

	queryListSchemas = `
		SELECT SCHEMA_NAME
		FROM INFORMATION_SCHEMA.SCHEMATA
		WHERE SCHEMA_NAME <> 'INFORMATION_SCHEMA'
		ORDER BY SCHEMA_NAME`

	queryListTables = `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ?
		  AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`

	queryGetColumns = `
		SELECT COLUMN_NAME, DATA_TYPE, COALESCE(NUMERIC_SCALE, -1), IS_NULLABLE, COALESCE(COMMENT, '')
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ?
		  AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`

	queryTableExists = `
		SELECT COUNT(*)
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ?
		  AND TABLE_NAME = ?`

	queryRowCount = `
		SELECT COALESCE(ROW_COUNT, 0)
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ?
		  AND TABLE_NAME = ?`
)
