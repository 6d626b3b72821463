package clicmds

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gitlab.com/kittcore/bridge"
	"gitlab.com/kittcore/intercept"
	"gitlab.com/kittcore/kitt"
	"gitlab.com/kittcore/store"
	"gitlab.com/kittcore/webrequest"
)

func RunFlags() []cli.Flag {
	return append(configFlags(),
		&cli.StringFlag{
			Name:  "script",
			Usage: "background script of the extension",
			Value: "",
		},
		&cli.StringFlag{
			Name:  "extension",
			Usage: "extension id",
			Value: "",
		},
		&cli.StringFlag{
			Name:  "url",
			Usage: "url to open in an intercepted tab, none runs without a browser",
			Value: "",
		},
		&cli.StringFlag{
			Name:  "transport",
			Usage: "messageHandler or entryPoint",
			Value: "",
		},
		&cli.BoolFlag{
			Name:  "show",
			Usage: "show the browser window",
			Value: false,
		},
	)
}

// Run loads an extension and, when a url is given, opens it in a chrome tab whose
// requests are passed through the extension's rules
func Run(ctx *cli.Context) error {
	cfg, err := LoadConfig(ctx)
	if err != nil {
		return err
	}
	applyRunFlags(ctx, cfg)
	SetupLogging(cfg)

	rules := store.NewRuleStore(cfg.DataPath + "/rules")
	if err := rules.Init(); err != nil {
		log.Error().Err(err).Msg("failed to init rule store")
		return err
	}
	defer rules.Close()

	dispatcher := webrequest.NewDispatcher(cfg)
	switchboard := bridge.NewSwitchboard(cfg, dispatcher, rules)
	defer switchboard.Close()

	runContext, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.ExtensionScript != "" {
		if _, err := switchboard.LoadExtension(runContext, cfg.ExtensionID, cfg.ExtensionScript); err != nil {
			log.Error().Err(err).Str("extension_id", cfg.ExtensionID).Msg("failed to load extension")
			return err
		}
		log.Info().Str("extension_id", cfg.ExtensionID).Str("script", cfg.ExtensionScript).Msg("extension loaded")
	}

	var browser *intercept.Browser
	if cfg.URL != "" {
		browser = intercept.NewBrowser(cfg)
		if err := browser.Start(); err != nil {
			log.Error().Err(err).Msg("failed to start browser")
			return err
		}
		defer browser.Close()

		tab, err := browser.NewTab(runContext, dispatcher)
		if err != nil {
			log.Error().Err(err).Msg("failed to open tab")
			return err
		}
		if err := tab.Navigate(runContext, cfg.URL); err != nil {
			log.Warn().Err(err).Str("url", cfg.URL).Msg("navigation did not complete")
		}
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	log.Info().Msg("kittcore running, Ctrl-C to stop")
	<-c
	log.Info().Msg("Ctrl-C Pressed, shutting down")
	return nil
}

func applyRunFlags(ctx *cli.Context, cfg *kitt.Config) {
	if ctx.String("script") != "" {
		cfg.ExtensionScript = ctx.String("script")
	}
	if ctx.String("extension") != "" {
		cfg.ExtensionID = ctx.String("extension")
	}
	if ctx.String("url") != "" {
		cfg.URL = ctx.String("url")
	}
	if ctx.String("transport") != "" {
		cfg.Transport = kitt.TransportType(ctx.String("transport"))
	}
	if ctx.Bool("show") {
		cfg.Headless = false
	}
}
