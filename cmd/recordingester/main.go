package main

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dataflow-project/dataflow/internal/common"
	"github.com/dataflow-project/dataflow/internal/recordingester"
	"github.com/dataflow-project/dataflow/internal/recordingester/configuration"
	"github.com/dataflow-project/dataflow/internal/recordingester/recorddb"
)

const (
	CustomConfigLocation string = "config"
	MigrateDatabase      string = "migrateDatabase"
)

func init() {
	pflag.StringSlice(CustomConfigLocation, []string{}, "Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")
	pflag.Bool(MigrateDatabase, false, "Migrate database instead of running the ingester")
	pflag.Parse()
}

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()

	var config configuration.RecordIngesterConfiguration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)

	common.LoadConfig(&config, "./config/recordingester", userSpecifiedConfigs)
	if viper.GetBool(MigrateDatabase) {
		if err := migrateDatabase(config); err != nil {
			log.Fatal(err)
		}
	} else {
		recordingester.Run(&config)
	}
}

func migrateDatabase(config configuration.RecordIngesterConfiguration) error {
	log.Infof("Opening connection pool to postgres")
	db, err := recorddb.OpenPgxPool(config.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	return recorddb.Migrate(context.Background(), db)
}
