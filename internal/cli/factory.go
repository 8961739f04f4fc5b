package cli

import (
	"fmt"
	"log/slog"

	"github.com/joacominatel/bqpipe/internal/config"
	"github.com/joacominatel/bqpipe/internal/warehouse"
	"github.com/joacominatel/bqpipe/internal/warehouse/bigquery"
	"github.com/joacominatel/bqpipe/internal/warehouse/postgres"
	"github.com/joacominatel/bqpipe/internal/warehouse/snowflake"
)

// NewDriver builds the driver for the profile's warehouse. It does not
// connect.
func NewDriver(p config.Profile, logger *slog.Logger) (warehouse.Driver, error) {
	switch p.Warehouse {
	case config.WarehouseBigQuery:
		return bigquery.New(bigquery.Config{
			Project:         p.Project,
			CredentialsFile: p.CredentialsFile,
			Location:        p.Location,
			StagingBucket:   p.StagingBucket,
		}, logger), nil
	case config.WarehouseSnowflake:
		return snowflake.New(snowflake.Config{
			Account:              p.Account,
			Auth:                 p.Auth,
			User:                 p.User,
			Password:             p.Password,
			PrivateKeyPath:       p.PrivateKeyPath,
			PrivateKeyPassphrase: p.PrivateKeyPassphrase,
			Database:             p.Database,
			Schema:               p.Schema,
			Warehouse:            p.WarehouseName,
			Role:                 p.Role,
		}, logger), nil
	case config.WarehousePostgres:
		return postgres.New(p.DSN(), logger), nil
	default:
		return nil, fmt.Errorf("unknown warehouse %q", p.Warehouse)
	}
}
