package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/gophscan/internal/client/client"
	"github.com/dmitrijs2005/gophscan/internal/client/config"
	"github.com/dmitrijs2005/gophscan/internal/client/models"
	"github.com/dmitrijs2005/gophscan/internal/client/services"
	"github.com/dmitrijs2005/gophscan/internal/logging"
	"github.com/dmitrijs2005/gophscan/internal/redemption"
	"github.com/dmitrijs2005/gophscan/internal/syncqueue"
	"golang.org/x/text/language"
)

// App is the interactive gate client. All commands run on the REPL
// goroutine; the watcher and the sync runner work in the background.
type App struct {
	cfg    *config.Config
	log    logging.Logger
	repos  *client.Repositories
	remote client.Client

	engine  *redemption.Engine
	runner  *syncqueue.Runner
	watcher *syncqueue.Watcher

	mode      services.Mode
	validator services.TicketValidator
	search    *services.DebouncedSearch

	sel       models.Selection
	direction models.Direction
	locale    language.Tag

	scanner *bufio.Scanner
	out     io.Writer
}

// NewApp opens the local store, dials the ticket service and wires the
// client together. Call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	repos, err := client.InitDatabase(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	remote, err := client.NewGRPCClient(cfg.ServerEndpointAddr, cfg.DeviceToken)
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	a, err := newApp(ctx, cfg, log, repos, remote, os.Stdin, os.Stdout)
	if err != nil {
		_ = remote.Close()
		_ = repos.Close()
		return nil, err
	}
	return a, nil
}

func newApp(ctx context.Context, cfg *config.Config, log logging.Logger, repos *client.Repositories,
	remote client.Client, in io.Reader, out io.Writer) (*App, error) {

	mode, err := services.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Nop()
	}

	a := &App{
		cfg:       cfg,
		log:       log,
		repos:     repos,
		remote:    remote,
		direction: models.Direction(cfg.Direction),
		locale:    cfg.Language(),
		scanner:   bufio.NewScanner(in),
		out:       out,
	}

	drainer := syncqueue.NewDrainer(repos.Queue, remote,
		syncqueue.WithLogger(log),
		syncqueue.WithUploadTimeout(cfg.UploadTimeout),
		syncqueue.WithRecorder(repos.Metadata),
	)
	a.watcher = syncqueue.NewWatcher(remote, cfg.OnlineCheckInterval, log, func(online bool) {
		if online {
			a.runner.Trigger()
		}
	})
	a.runner = syncqueue.NewRunner(drainer, cfg.AutoSync,
		syncqueue.WithRunnerLogger(log),
		syncqueue.WithInterval(cfg.SyncInterval),
		syncqueue.WithOnline(a.watcher.Online),
	)
	a.engine = redemption.NewEngine(repos.Tickets,
		redemption.WithLogger(log),
		redemption.WithSyncTrigger(a.runner.Trigger),
	)

	a.sel = cfg.Selection()
	if a.sel.IsZero() {
		sel, err := repos.Metadata.Selection(ctx)
		if err != nil {
			return nil, fmt.Errorf("load selection: %w", err)
		}
		a.sel = sel
	}

	if err := a.setMode(mode); err != nil {
		return nil, err
	}
	return a, nil
}

// setMode swaps the validator. Scans queued by the offline modes stay in
// the queue and are uploaded by the runner in any mode.
func (a *App) setMode(mode services.Mode) error {
	v, err := services.NewTicketValidator(mode, services.Deps{
		Remote: a.remote,
		Store:  a.repos.Tickets,
		Engine: a.engine,
		Locale: a.locale,
		Log:    a.log,
	})
	if err != nil {
		return err
	}

	if a.mode != mode && a.mode != "" {
		a.log.Info(context.Background(), "mode switched", "from", a.mode, "to", mode)
	}
	a.mode = mode
	a.validator = v
	a.search = services.NewDebouncedSearch(v, a.cfg.SearchDebounce)
	return nil
}

// Run starts the background workers and the REPL. It returns when the user
// quits, input ends or ctx is canceled.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.watcher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.runner.Run(ctx)
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		runREPL(ctx, a, a.status, a.scanner)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
	cancel()
	wg.Wait()
}

// status renders the prompt prefix: mode, reachability and selection.
func (a *App) status() string {
	s := string(a.mode)
	if !a.watcher.Online() {
		s += "!"
	}
	if a.sel.IsZero() {
		return s + " -"
	}
	return fmt.Sprintf("%s %s/%d", s, a.sel.EventSlug, a.sel.CheckInListID)
}

func (a *App) Close() error {
	return errors.Join(a.remote.Close(), a.repos.Close())
}
