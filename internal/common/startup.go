package common

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// LoadConfig reads the service configuration from defaultPath and merges any
// user supplied override files on top, then unmarshals into config.
// Configuration errors are fatal.
func LoadConfig(config interface{}, defaultPath string, overrideConfigs []string) {
	viper.SetConfigName("config")
	viper.AddConfigPath(defaultPath)
	if err := viper.ReadInConfig(); err != nil {
		log.Error(err)
		os.Exit(-1)
	}

	for _, overrideConfig := range overrideConfigs {
		viper.SetConfigFile(overrideConfig)
		if err := viper.MergeInConfig(); err != nil {
			log.Error(err)
			os.Exit(-1)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		log.Error(err)
		os.Exit(-1)
	}
}

func ConfigureLogging() {
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	log.SetOutput(os.Stdout)
}

func BindCommandlineArguments() {
	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		log.Error(err)
		os.Exit(-1)
	}
}

// ServeMetrics exposes prometheus metrics on the given port and returns a
// function that shuts the server down.
func ServeMetrics(port uint16) (shutdown func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.WithError(err).Error("Error shutting down metrics server")
		}
	}
}
