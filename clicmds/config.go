package clicmds

import (
	"io/ioutil"
	"os"
	"strings"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gitlab.com/kittcore/kitt"
)

func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "config to use",
			Value: "",
		},
		&cli.StringFlag{
			Name:  "datadir",
			Usage: "data directory",
			Value: "",
		},
		&cli.StringFlag{
			Name:  "loglevel",
			Usage: "trace, debug, info, warn or error",
			Value: "",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "human readable log output",
			Value: false,
		},
	}
}

// LoadConfig from the toml file given by --config, flags override file values
func LoadConfig(ctx *cli.Context) (*kitt.Config, error) {
	cfg := kitt.DefaultConfig()

	if ctx.String("config") != "" {
		data, err := ioutil.ReadFile(ctx.String("config"))
		if err != nil {
			return nil, errors.Wrap(err, "reading config")
		}

		if err := toml.NewDecoder(strings.NewReader(string(data))).Decode(cfg); err != nil {
			return nil, errors.Wrap(err, "decoding config")
		}
	}

	if ctx.String("datadir") != "" {
		cfg.DataPath = ctx.String("datadir")
	}
	if ctx.String("loglevel") != "" {
		cfg.LogLevel = ctx.String("loglevel")
	}
	if ctx.Bool("pretty") {
		cfg.PrettyLog = true
	}

	switch cfg.Transport {
	case kitt.TransportMessageHandler, kitt.TransportEntryPoint:
	case "":
		cfg.Transport = kitt.TransportMessageHandler
	default:
		return nil, errors.Errorf("unknown transport %s", cfg.Transport)
	}
	return cfg, nil
}

// SetupLogging from config
func SetupLogging(cfg *kitt.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.PrettyLog {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
