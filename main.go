package main

import (
	"flag"

	"github.com/golang/glog"
	"github.com/spf13/viper"

	"github.com/vertamedia/vertamedia-pbs/config"
	"github.com/vertamedia/vertamedia-pbs/router"
	"github.com/vertamedia/vertamedia-pbs/server"
)

// Rev holds binary revision string
// Set manually at build time using:
//
//	go build -ldflags "-X main.Rev=`git rev-parse --short HEAD` -X main.Version=`git describe --tags`"
var Rev string

// Version holds the release tag the binary was built from.
var Version string

func main() {
	flag.Parse() // required for glog flags and testing package flags

	cfg, err := loadConfig()
	if err != nil {
		glog.Exitf("Configuration could not be loaded or did not pass validation: %v", err)
	}

	err = serve(Version, Rev, cfg)
	if err != nil {
		glog.Exitf("vertamedia-pbs failed: %v", err)
	}
}

const configFileName = "pbs"

func loadConfig() (*config.Configuration, error) {
	v := viper.New()
	config.SetupViper(v, configFileName)
	return config.New(v)
}

func serve(version, revision string, cfg *config.Configuration) error {
	r, err := router.New(cfg, version, revision)
	if err != nil {
		return err
	}
	defer r.Shutdown()

	corsRouter := router.SupportCORS(r)
	limited := router.RateLimit(cfg.RateLimit, corsRouter)
	return server.Listen(cfg, router.NoCache{Handler: limited}, router.Admin(version, revision), r.MetricsEngine)
}
