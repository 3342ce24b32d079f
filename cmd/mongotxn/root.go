package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	mongo "github.com/liran/mongotxn"
)

type rootFlags struct {
	envFile  string
	uri      string
	database string
	logLevel string
	logJSON  bool
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	cmd := &cobra.Command{
		Use:          "mongotxn",
		Short:        "Provision and tear down MongoDB databases used by mongotxn",
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before reading MONGO_* variables")
	pf.StringVar(&f.uri, "uri", "", "connection string (overrides MONGO_URI)")
	pf.StringVar(&f.database, "database", "", "database name (overrides MONGO_DATABASE)")
	pf.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (overrides MONGO_LOG_LEVEL)")
	pf.BoolVar(&f.logJSON, "log-json", false, "log as JSON")

	cmd.AddCommand(newProvisionCmd(f), newExistsCmd(f), newDropCmd(f))
	return cmd
}

// open loads the config the same way the library does, with set flags on top.
func (f *rootFlags) open(cmd *cobra.Command) (*mongo.Database, error) {
	if f.envFile != "" {
		if err := godotenv.Load(f.envFile); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "load %s", f.envFile)
		}
	}

	over := map[string]any{}
	if f.uri != "" {
		over["uri"] = f.uri
	}
	if f.database != "" {
		over["database"] = f.database
	}
	if f.logLevel != "" {
		over["log_level"] = f.logLevel
	}
	if cmd.Flags().Changed("log-json") {
		over["log_json"] = f.logJSON
	}

	cfg, err := mongo.LoadConfig(mongo.WithOverrides(over))
	if err != nil {
		return nil, err
	}
	return mongo.Open(cmd.Context(), cfg, mongo.WithLogger(cfg.Logger(cmd.ErrOrStderr())))
}

func withDatabase(f *rootFlags, run func(ctx context.Context, cmd *cobra.Command, db *mongo.Database) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		db, err := f.open(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		return run(cmd.Context(), cmd, db)
	}
}

func newProvisionCmd(f *rootFlags) *cobra.Command {
	var schemaFile string
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create the collections of a schema file that do not exist yet",
		RunE: withDatabase(f, func(ctx context.Context, cmd *cobra.Command, db *mongo.Database) error {
			data, err := os.ReadFile(schemaFile)
			if err != nil {
				return err
			}
			schema, err := mongo.ParseSchema(data)
			if err != nil {
				return err
			}
			created, err := db.ProvisionSchema(ctx, schema)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintln(cmd.OutOrStdout(), "created")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "unchanged")
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&schemaFile, "schema", "schema.yaml", "YAML schema file")
	return cmd
}

func newExistsCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "exists",
		Short: "Print whether the database exists",
		RunE: withDatabase(f, func(ctx context.Context, cmd *cobra.Command, db *mongo.Database) error {
			ok, err := db.DatabaseExists(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ok)
			return nil
		}),
	}
}

func newDropCmd(f *rootFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop the database and all of its data",
		PreRunE: func(*cobra.Command, []string) error {
			if !yes {
				return errors.New("refusing to drop without --yes")
			}
			return nil
		},
		RunE: withDatabase(f, func(ctx context.Context, _ *cobra.Command, db *mongo.Database) error {
			return db.DeleteDatabase(ctx)
		}),
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the drop")
	return cmd
}
