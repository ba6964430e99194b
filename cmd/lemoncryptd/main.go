// Command lemoncryptd runs the mailbox encryption pipeline and the
// certificate upload HTTP endpoint described by a TOML configuration file.
package main

import (
	"context"
	"io/ioutil"
	"net/http"
	"os"
	"time"

	"github.com/codegangsta/cli"
	"github.com/juju/loggo"
	"github.com/naoina/toml"

	"github.com/hoffie/cryptomail/internal/certupload"
	appconfig "github.com/hoffie/cryptomail/internal/config"
	"github.com/hoffie/cryptomail/internal/cryptocore"
	"github.com/hoffie/cryptomail/internal/mailbox"
	"github.com/hoffie/cryptomail/internal/metrics"
	"github.com/hoffie/cryptomail/internal/paramstore"
)

var logger = loggo.GetLogger("main")

func main() {
	setupLogging()
	setupCLI()
}

func setupLogging() {
	cfg := os.Getenv("CRYPTOMAIL_LOGGING")
	if cfg == "" {
		cfg = "<root>=DEBUG"
	}
	loggo.ConfigureLoggers(cfg)
	logger.Tracef("logging set up")
}

func setupCLI() {
	app := cli.NewApp()
	app.Name = "lemoncryptd"
	app.Usage = "transparently encrypt delivered mail and serve the certificate upload form"
	app.Version = "0.1"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config",
			Usage:  "path to your config file",
			EnvVar: "CRYPTOMAIL_CONFIG",
		},
		cli.StringFlag{
			Name:  "write-metrics",
			Usage: "path to write per-message CSV metrics to",
		},
	}
	a := &Action{}
	app.Action = a.Run
	app.Run(os.Args)
}

// Action ties the whole daemon together: load config, open the parameter
// store, start the upload HTTP server, and run the mailbox pipeline for
// the account configured in the [server] section.
type Action struct {
	ctx   *cli.Context
	cfg   *appconfig.Config
	store *paramstore.SQLiteStore
}

// Run is the CLI entrypoint.
func (a *Action) Run(ctx *cli.Context) {
	a.ctx = ctx
	if err := a.loadConfig(); err != nil {
		os.Exit(1)
	}
	if err := a.validateConfig(); err != nil {
		logger.Errorf("config validation failed: %s", err)
		os.Exit(1)
	}

	var err error
	a.store, err = paramstore.Open(a.cfg.Crypto.DatabasePath)
	if err != nil {
		logger.Errorf("failed to open parameter store: %s", err)
		os.Exit(1)
	}
	defer a.store.Close()

	if a.cfg.Crypto.ListenAddress != "" {
		go a.serveUploadForm()
	}

	if err := a.runPipeline(); err != nil {
		os.Exit(1)
	}
}

func (a *Action) loadConfig() error {
	path := a.ctx.String("config")
	if path == "" {
		path = "lemoncrypt.cfg"
	}
	logger.Debugf("trying to load config file %s", path)
	content, err := ioutil.ReadFile(path)
	if err != nil {
		logger.Errorf("failed to read config file: %s", err)
		return err
	}
	a.cfg = &appconfig.Config{}
	if err := toml.Unmarshal(content, a.cfg); err != nil {
		logger.Errorf("unable to parse config file: %s", err)
		return err
	}
	logger.Debugf("config loaded successfully")
	return nil
}

func (a *Action) validateConfig() error {
	if len(a.cfg.Mailbox.Folders) < 1 {
		logger.Errorf("no folders configured (mailbox.folders)")
		return cli.NewExitError("no folders configured", 1)
	}
	if a.cfg.Crypto.DatabasePath == "" {
		a.cfg.Crypto.DatabasePath = appconfig.ExpandTilde("~/.cryptomail/params.db")
	} else {
		a.cfg.Crypto.DatabasePath = appconfig.ExpandTilde(a.cfg.Crypto.DatabasePath)
	}
	return nil
}

func (a *Action) serveUploadForm() {
	handler := certupload.NewHandler(&mailbox.IMAPAuthenticator{Address: a.cfg.Server.Address}, a.store)
	router := certupload.Routes(handler)
	logger.Infof("serving certificate upload form on %s", a.cfg.Crypto.ListenAddress)
	if err := http.ListenAndServe(a.cfg.Crypto.ListenAddress, router); err != nil {
		logger.Errorf("upload form server failed: %s", err)
	}
}

func (a *Action) runPipeline() error {
	source := mailbox.NewSource(a.cfg.Mailbox.DeletePlainCopies, time.Duration(a.cfg.Mailbox.MinAgeDays))
	if err := source.Dial(a.cfg.Server.Address); err != nil {
		return err
	}
	defer source.Close()
	if err := source.Login(a.cfg.Server.Username, a.cfg.Server.Password); err != nil {
		return err
	}

	target := mailbox.NewTarget()
	if err := target.Dial(a.cfg.Server.Address); err != nil {
		return err
	}
	defer target.Close()
	if err := target.Login(a.cfg.Server.Username, a.cfg.Server.Password); err != nil {
		return err
	}

	var metricsCollector *metrics.Collector
	if outfile := a.ctx.String("write-metrics"); outfile != "" {
		var err error
		metricsCollector, err = metrics.NewCollector(outfile)
		if err != nil {
			logger.Errorf("failed to initialize metrics collector: %s", err)
			return err
		}
		defer metricsCollector.Close()
	}

	orchestrator := cryptocore.NewOrchestrator(a.cfg.Crypto.Workers)
	pipeline := mailbox.NewPipeline(source, target, orchestrator, a.store, a.cfg.Server.Username, metricsCollector)
	return pipeline.Run(context.Background(), a.cfg.Mailbox.Folders)
}
