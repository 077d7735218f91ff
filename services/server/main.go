package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/wardenkit/warden/lib/config"
	"github.com/wardenkit/warden/lib/gateway"
	"github.com/wardenkit/warden/lib/ledger"
	"github.com/wardenkit/warden/lib/logging"
	"github.com/wardenkit/warden/lib/moderation"
	"github.com/wardenkit/warden/lib/scheduler"
	"github.com/wardenkit/warden/lib/settings"
	"github.com/wardenkit/warden/lib/web"
	"github.com/wardenkit/warden/lib/workflow/docstore"
	"github.com/wardenkit/warden/lib/workflow/report"
	"github.com/wardenkit/warden/lib/workflow/ticket"
)

func main() {
	if err := config.InitConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize config: %v\n", err)
		os.Exit(1)
	}

	if err := logging.InitLogger(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.GetConfig()
	if err != nil {
		logging.Fatalf("Failed to load config: %v", err)
	}

	ledgerStore, err := ledger.InitStore(config.GetPath("ledger"))
	if err != nil {
		logging.Fatalf("Failed to open case ledger: %v", err)
	}

	pendingStore, err := scheduler.InitPendingStore(config.GetPath("scheduler"))
	if err != nil {
		logging.Fatalf("Failed to open pending sanction store: %v", err)
	}

	workflowStore, err := docstore.InitStore(config.GetDataDir())
	if err != nil {
		logging.Fatalf("Failed to open workflow store: %v", err)
	}

	gw := gateway.NewHTTPGateway(&cfg.Gateway)
	communities := settings.NewConfigProvider()

	sched := scheduler.New(ledgerStore, gw, pendingStore, communities, cfg.Moderation.NumberDirectSanctions)
	if err := sched.Start(); err != nil {
		logging.Fatalf("Failed to start sanction scheduler: %v", err)
	}

	graceDelay := time.Duration(cfg.Moderation.GraceDelaySeconds) * time.Second
	tickets := ticket.NewWorkflow(workflowStore, gw, communities, graceDelay, cfg.Moderation.TranscriptChunkSize)
	reports := report.NewWorkflow(workflowStore, ledgerStore, gw, communities, graceDelay)

	service := moderation.NewService(ledgerStore, gw, sched, communities, cfg.Moderation.NumberDirectSanctions)

	go func() {
		if err := web.StartServer(service, tickets, reports); err != nil {
			logging.Fatalf("Web server stopped: %v", err)
		}
	}()

	logging.Infof("Moderation core started on %s:%d", cfg.Server.BindAddress, cfg.Server.Port)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logging.Info("Shutting down")

	sched.Stop()
	tickets.Drain()
	reports.Drain()

	shutdownErr := multierr.Combine(
		ledgerStore.Close(),
		pendingStore.Close(),
		workflowStore.Close(),
	)
	if shutdownErr != nil {
		logging.Errorf("Shutdown finished with errors: %v", shutdownErr)
	}
}
