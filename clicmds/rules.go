package clicmds

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gitlab.com/kittcore/bridge"
	"gitlab.com/kittcore/store"
	"gitlab.com/kittcore/webrequest"
)

func RulesFlags() []cli.Flag {
	return append(configFlags(),
		&cli.StringFlag{
			Name:  "extension",
			Usage: "only list rules of this extension",
			Value: "",
		},
		&cli.BoolFlag{
			Name:  "check",
			Usage: "parse every rule and report the ones that no longer load",
			Value: false,
		},
	)
}

// Rules prints the declarative rules persisted in the data directory
func Rules(ctx *cli.Context) error {
	cfg, err := LoadConfig(ctx)
	if err != nil {
		return err
	}
	SetupLogging(cfg)

	rules := store.NewRuleStore(cfg.DataPath + "/rules")
	if err := rules.Init(); err != nil {
		log.Error().Err(err).Msg("failed to init database for viewing")
		return err
	}
	defer rules.Close()

	extensions := []string{ctx.String("extension")}
	if extensions[0] == "" {
		if extensions, err = rules.Extensions(); err != nil {
			return err
		}
	}

	writer := ctx.App.Writer
	for _, extensionID := range extensions {
		records, err := rules.Rules(extensionID)
		if err != nil {
			return err
		}
		fmt.Fprintf(writer, "%s: %d rules\n", extensionID, len(records))
		listeners := bridge.NewListeners(extensionID)
		for _, record := range records {
			fmt.Fprintf(writer, "  %s (priority %d) %s\n", record.ID, record.Priority, string(record.Raw))
			if !ctx.Bool("check") {
				continue
			}
			if _, err := webrequest.ParseDeclarativeRule(extensionID, record.Raw, listeners); err != nil {
				fmt.Fprintf(writer, "    invalid: %s\n", err)
			}
		}
	}
	return nil
}
