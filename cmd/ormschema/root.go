package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/syssam/orm/metadata"
)

const (
	cfgKeyDriver = "driver"
	cfgKeyDSN    = "dsn"
	cfgKeyDebug  = "debug"

	defaultDriver = "sqlite"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string
	cmd := &cobra.Command{
		Use:   "ormschema",
		Short: "Check entity schemas and verify them against a database",
		Long: `ormschema loads entity declarations from a YAML file, resolves their
relations, join columns and junction tables, and reports what it finds.

Examples:
  ormschema check schema.yaml
  ormschema describe schema.yaml
  ormschema verify --driver pgx --dsn postgres://localhost/app schema.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(v, cmd, configFile)
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default: .ormschema.yaml in the working directory)")
	flags.String(cfgKeyDriver, defaultDriver, "database driver: sqlite, mysql or pgx")
	flags.String(cfgKeyDSN, "", "data source name of the database")
	flags.Bool(cfgKeyDebug, false, "log every statement")

	cmd.AddCommand(newCheckCmd(), newDescribeCmd(), newVerifyCmd(v))
	return cmd
}

// loadConfig layers flags over ORMSCHEMA_* environment variables over the
// config file. A missing default config file is not an error.
func loadConfig(v *viper.Viper, cmd *cobra.Command, file string) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	v.SetEnvPrefix("ormschema")
	v.AutomaticEnv()
	v.SetDefault(cfgKeyDriver, defaultDriver)
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(".ormschema")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// loadRegistry reads a schema file and builds its registry. The registry
// is returned with its validation result even when the build fails.
func loadRegistry(path string) (*metadata.Registry, error) {
	ms, err := metadata.LoadYAML(path)
	if err != nil {
		return nil, err
	}
	reg := metadata.NewRegistry()
	if err := reg.Register(ms...); err != nil {
		return nil, err
	}
	return reg, reg.Build()
}
