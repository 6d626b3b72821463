package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"gitlab.com/kittcore/clicmds"
)

func main() {
	app := cli.NewApp()
	app.Name = "kittcore"
	app.Version = "0.1"
	app.Usage = "Run browser extensions and their webRequest rules against chrome"
	app.Commands = []*cli.Command{
		{
			Name:    "run",
			Aliases: []string{"r"},
			Usage:   "load an extension and intercept a browser tab with its rules",
			Action:  clicmds.Run,
			Flags:   clicmds.RunFlags(),
		},
		{
			Name:    "rules",
			Aliases: []string{"l"},
			Usage:   "list persisted declarative rules",
			Action:  clicmds.Rules,
			Flags:   clicmds.RulesFlags(),
		},
	}
	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
