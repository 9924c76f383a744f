package main

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dataflow-project/dataflow/internal/common"
	"github.com/dataflow-project/dataflow/internal/documentingester"
	"github.com/dataflow-project/dataflow/internal/documentingester/configuration"
)

const CustomConfigLocation string = "config"

func init() {
	pflag.StringSlice(CustomConfigLocation, []string{}, "Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")
	pflag.Parse()
}

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()

	var config configuration.DocumentIngesterConfiguration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)

	common.LoadConfig(&config, "./config/documentingester", userSpecifiedConfigs)
	documentingester.Run(&config)
}
