package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/menta2k/boxlabel"
	"github.com/menta2k/boxlabel/internal/config"
	"github.com/menta2k/boxlabel/internal/logging"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, ws *boxlabel.Workspace, args []string) error
}

var commands = []command{
	{"render", "draw the stored boxes over an image", runRender},
	{"crop", "export one crop per box", runCrop},
	{"suggest", "propose boxes for an image, optionally merging them into its labels", runSuggest},
	{"convert", "copy a dataset's labels into another store", runConvert},
	{"replay", "run an editing script against an image", runReplay},
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-config file] [-v] <command> [flags]\n\ncommands:\n", filepath.Base(os.Args[0]))
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(os.Stderr, "  %-8s %s\n", "version", "print the version")
}

func main() {
	var configPath string
	var verbose bool

	flag.StringVar(&configPath, "config", "", "config file (yaml/json/toml); BOXLABEL_* env vars override it")
	flag.BoolVar(&verbose, "v", false, "debug logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	name, args := flag.Arg(0), flag.Args()[1:]
	if name == "version" {
		fmt.Println(boxlabel.Version)
		return
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		usage()
		log.Fatalf("unknown command %q", name)
	}

	mode := "release"
	if verbose {
		mode = "debug"
	}
	logger := logging.Must(mode)
	defer logging.Sync(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ws, err := boxlabel.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer ws.Close()

	if err := cmd.run(ctx, ws, args); err != nil {
		logger.Error("command failed", zap.String("command", name), zap.Error(err))
		ws.Close()
		logging.Sync(logger)
		os.Exit(1)
	}
}
