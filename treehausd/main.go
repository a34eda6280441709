package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"

	"github.com/treehaus/treehaus"
)

const TreehausdVersion = "0.1.0"

func main() {
	usage := `Treehaus sync server.

Serves one shared tree document to all connected viewers. The realtime
endpoint is /sync; the request/response fallback is /items.

Usage:
    treehausd serve [--listen=<addr>] [--config=<path>]
        [--store=<backend>] [--store_path=<path>]

Options:
    -h --help               Show this screen.
    --version               Show version.
    --config=<path>         Yaml config file.
    --listen=<addr>         Listen address [default from config].
    --store=<backend>       Store backend, file or sqlite.
    --store_path=<path>     Document path (json file or sqlite db).`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], TreehausdVersion)
	if err != nil {
		panic(err)
	}

	if serve_, _ := opts.Bool("serve"); serve_ {
		serve(opts)
	}
}

func serve(opts docopt.Opts) {
	config := treehaus.DefaultConfig()
	if configPathAny := opts["--config"]; configPathAny != nil {
		var err error
		config, err = treehaus.LoadConfig(configPathAny.(string))
		if err != nil {
			fmt.Printf("config error: %s\n", err)
			os.Exit(1)
		}
	}
	if listenAny := opts["--listen"]; listenAny != nil {
		config.Listen = listenAny.(string)
	}
	if storeAny := opts["--store"]; storeAny != nil {
		config.Store.Backend = storeAny.(string)
	}
	if storePathAny := opts["--store_path"]; storePathAny != nil {
		config.Store.Path = storePathAny.(string)
	}

	cancelCtx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM,
	)
	defer cancel()

	store, err := config.NewStore()
	if err != nil {
		fmt.Printf("store error: %s\n", err)
		os.Exit(1)
	}

	coordinator := treehaus.NewCoordinatorWithDefaults(cancelCtx, store)
	server := treehaus.NewServerWithDefaults(cancelCtx, coordinator)

	httpServer := &http.Server{
		Addr:    config.Listen,
		Handler: server.Router(),
	}

	fmt.Printf(
		"Treehaus %s (%s store) on %s\n",
		TreehausdVersion,
		config.Store.Backend,
		config.Listen,
	)

	go func() {
		defer cancel()
		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			fmt.Printf("serve error: %s\n", err)
		}
	}()

	select {
	case <-cancelCtx.Done():
	}

	httpServer.Shutdown(context.Background())
	coordinator.Close()

	os.Exit(0)
}
