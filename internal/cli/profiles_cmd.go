package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/joacominatel/bqpipe/internal/config"
	"github.com/joacominatel/bqpipe/internal/frame"
)

func newProfilesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "profiles",
		Aliases: []string{"profile"},
		Short:   "Manage connection profiles",
	}
	cmd.AddCommand(newProfilesListCmd(opts))
	cmd.AddCommand(newProfilesAddCmd(opts))
	cmd.AddCommand(newProfilesRemoveCmd(opts))
	cmd.AddCommand(newProfilesDefaultCmd(opts))
	cmd.AddCommand(newProfilesSecretCmd(opts))
	return cmd
}

func newProfilesListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			def := config.DefaultProfile(cfg)

			f := &frame.Frame{Columns: []*frame.Column{
				{Name: "name", Kind: frame.KindString},
				{Name: "warehouse", Kind: frame.KindString},
				{Name: "target", Kind: frame.KindString},
				{Name: "default", Kind: frame.KindBool},
			}}
			for _, p := range cfg.Profiles {
				_ = f.AppendRow(p.Name, p.Warehouse, p.DisplayString(), def != nil && def.Name == p.Name)
			}
			return printFrame(cmd.OutOrStdout(), f, opts.output)
		},
	}
}

func newProfilesAddCmd(opts *rootOptions) *cobra.Command {
	var (
		p   config.Profile
		dsn string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Save a new profile",
		Example: `  bqpipe profiles add prod --warehouse bigquery --project acme-analytics --location EU
  bqpipe profiles add sf --warehouse snowflake --account xy12345.eu-west-1 --user ETL \
      --auth KEY_PAIR --private-key-path ~/.ssh/rsa_key.p8 --private-key-passphrase keyring:
  bqpipe profiles add local --dsn postgresql://postgres@localhost:5432/app`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn != "" {
				parsed, err := config.ParseDSN(dsn)
				if err != nil {
					return err
				}
				parsed.Dataset = p.Dataset
				p = parsed
			}
			p.Name = args[0]
			p.Warehouse = strings.ToLower(p.Warehouse)
			p.Auth = strings.ToUpper(p.Auth)
			if p.Warehouse != config.WarehouseSnowflake {
				p.Auth = ""
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.AddProfile(p); err != nil {
				return err
			}
			if err := config.Save(cfg, opts.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved profile %s (%s)\n", p.Name, p.DisplayString())
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&p.Warehouse, "warehouse", "", "Warehouse kind: bigquery, snowflake or postgres")
	fl.StringVar(&dsn, "dsn", "", "PostgreSQL connection string")
	fl.StringVar(&p.Dataset, "dataset", "", "Default dataset or schema")
	fl.StringVar(&p.Project, "project", "", "BigQuery project")
	fl.StringVar(&p.CredentialsFile, "credentials-file", "", "BigQuery service account key file")
	fl.StringVar(&p.Location, "location", "", "BigQuery job location")
	fl.StringVar(&p.StagingBucket, "staging-bucket", "", "Cloud Storage bucket for staged loads")
	fl.StringVar(&p.Account, "account", "", "Snowflake account identifier")
	fl.StringVar(&p.Auth, "auth", config.AuthKeyPair, "Snowflake auth: KEY_PAIR or USER_LOGIN")
	fl.StringVar(&p.User, "user", "", "User name")
	fl.StringVar(&p.Password, "password", "", "Password, or keyring: to read it from the OS keyring")
	fl.StringVar(&p.PrivateKeyPath, "private-key-path", "", "Snowflake RSA private key (PEM)")
	fl.StringVar(&p.PrivateKeyPassphrase, "private-key-passphrase", "", "Key passphrase, or keyring:")
	fl.StringVar(&p.Database, "database", "", "Database")
	fl.StringVar(&p.Schema, "schema", "", "Snowflake schema")
	fl.StringVar(&p.WarehouseName, "warehouse-name", "", "Snowflake virtual warehouse")
	fl.StringVar(&p.Role, "role", "", "Snowflake role")
	fl.StringVar(&p.Host, "host", "", "Postgres host")
	fl.IntVar(&p.Port, "port", 0, "Postgres port")
	fl.StringVar(&p.SSLMode, "sslmode", "", "Postgres sslmode")
	return cmd
}

func newProfilesRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete a profile and its keyring secrets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RemoveProfile(args[0]); err != nil {
				return err
			}
			if err := config.Save(cfg, opts.configPath); err != nil {
				return err
			}
			if err := config.DeleteSecrets(args[0]); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed profile %s\n", args[0])
			return nil
		},
	}
}

func newProfilesDefaultCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "default <name>",
		Short: "Set the default profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.SetDefault(args[0]); err != nil {
				return err
			}
			if err := config.Save(cfg, opts.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default profile is now %s\n", args[0])
			return nil
		},
	}
}

func newProfilesSecretCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "secret <name> <field>",
		Short: "Store a profile secret in the OS keyring",
		Long: "Store password or private_key_passphrase in the OS keyring. Set the profile field to " +
			"\"keyring:\" (or leave it empty) to use the stored value.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if !cfg.HasProfile(args[0]) {
				return fmt.Errorf("profile %q not found", args[0])
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s for %s: ", args[1], args[0])
			secret, err := opts.readPassword(cmd)
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if secret == "" {
				return errors.New("empty secret")
			}
			if err := config.SetSecret(args[0], args[1], secret); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s for %s in the keyring\n", args[1], args[0])
			return nil
		},
	}
}

// promptPassword reads a secret without echo when stdin is a terminal, and
// one line otherwise.
func promptPassword(cmd *cobra.Command) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
