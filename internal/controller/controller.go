// Package controller wires the transports, the connection manager and
// the update pipeline together and runs the interactive session.
package controller

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gosuri/uitable"
	"golang.org/x/sync/errgroup"

	"github.com/ahk4918/microlink/internal/bridge"
	"github.com/ahk4918/microlink/internal/device"
	"github.com/ahk4918/microlink/internal/firmware/update"
	"github.com/ahk4918/microlink/internal/transport"
	"github.com/ahk4918/microlink/pkg/log"
	"github.com/ahk4918/microlink/pkg/options"
)

// queryTimeout bounds correlated request/response exchanges such as the
// version query.
const queryTimeout = 5 * time.Second

// errQuit signals a clean operator-initiated shutdown.
var errQuit = errors.New("quit")

// Config collects everything the controller needs to run.
type Config struct {
	Mode     device.Mode
	Serial   *options.SerialOptions
	Wireless *options.WirelessOptions
	Update   *options.UpdateOptions
}

// Controller owns the session lifecycle: one update check, one
// connection, then an interactive prompt until the operator quits or
// the context is cancelled.
type Controller struct {
	bridge  *bridge.Bridge
	manager *device.Manager
	updater *update.Updater
	logger  log.Logger

	in      io.Reader
	out     io.Writer
	lines   chan string
	inErr   chan error
	restart func() error

	// selCh, when non-nil, claims the next input line for a pending
	// wireless selection prompt so it never reaches the prompt loop.
	selMu sync.Mutex
	selCh chan string
}

// New builds a controller from validated options. in and out are the
// operator's terminal; they are injectable for tests.
func New(cfg *Config, in io.Reader, out io.Writer) *Controller {
	c := &Controller{
		bridge:  bridge.New(),
		logger:  log.WithName("controller"),
		in:      in,
		out:     out,
		lines:   make(chan string),
		inErr:   make(chan error, 1),
		restart: update.Restart,
	}

	dialer := transport.NewWirelessDialer(c.bridge, cfg.Wireless)
	c.manager = device.NewManager(
		cfg.Mode,
		device.NewSerialLink(cfg.Serial),
		device.NewWirelessLink(dialer),
		c.selectCandidate,
		c.printDeviceLine,
	)

	resolver := update.NewResolver(cfg.Update, c.queryVersion, log.WithName("resolver"))
	c.updater = update.New(cfg.Update, resolver, log.WithName("updater"))

	return c
}

// Run executes one session: update check (restarting the process after
// a successful flash), connect, then the prompt loop until quit or
// cancellation.
func (c *Controller) Run(ctx context.Context) error {
	defer c.bridge.Close()
	defer c.manager.Shutdown()

	go c.pumpInput(ctx)

	outcome, err := c.updater.Run(ctx)
	switch outcome {
	case update.OutcomeUpdated:
		c.logger.Info("firmware flashed, restarting to pick it up")
		return c.restart()
	case update.OutcomeFailed, update.OutcomeCheckFailed:
		c.logger.Warn("continuing with current firmware", "outcome", outcome.String(), "err", err)
	default:
		c.logger.Info("update check finished", "outcome", outcome.String())
	}

	if err := c.manager.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to device: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.promptLoop(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		c.manager.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// pumpInput owns the input stream for the whole session and routes each
// line: a pending selection prompt claims it, everything else flows to
// the prompt loop. Routing here matters because a reconnect can raise
// the selection prompt while the prompt loop is already parked on the
// channel.
func (c *Controller) pumpInput(ctx context.Context) {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		line := scanner.Text()
		if c.offerSelection(line) {
			continue
		}
		select {
		case c.lines <- line:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		c.inErr <- err
		return
	}
	c.inErr <- io.EOF
}

// promptLoop reads operator commands and ships them to the device.
func (c *Controller) promptLoop(ctx context.Context) error {
	fmt.Fprintln(c.out, "Type commands for the device; 'version' queries it, 'exit' quits.")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-c.inErr:
			if errors.Is(err, io.EOF) {
				return errQuit
			}
			return err
		case line := <-c.lines:
			if err := c.dispatch(line); err != nil {
				return err
			}
		}
	}
}

// dispatch handles one operator line. Returns errQuit to end the
// session cleanly.
func (c *Controller) dispatch(line string) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return nil
	case line == "exit" || line == "quit":
		return errQuit
	case line == "version":
		v, err := c.manager.Query(device.Version(), queryTimeout)
		if err != nil {
			fmt.Fprintf(c.out, "version query failed: %v\n", err)
			return nil
		}
		fmt.Fprintf(c.out, "[DEVICE] version: %s\n", v)
		return nil
	default:
		if err := c.manager.WriteLine(line); err != nil {
			fmt.Fprintf(c.out, "send failed: %v\n", err)
		}
		return nil
	}
}

// printDeviceLine is the manager's observer for unsolicited traffic.
func (c *Controller) printDeviceLine(line string) {
	fmt.Fprintf(c.out, "[DEVICE] %s\n", line)
}

// queryVersion asks the connected device for its firmware version. Used
// as the resolver's fallback when the volume marker is absent.
func (c *Controller) queryVersion() (string, error) {
	if !c.manager.Connected() {
		return "", device.ErrNotConnected
	}
	return c.manager.Query(device.Version(), queryTimeout)
}

// offerSelection hands a line to a pending selection prompt. Returns
// false when no prompt is waiting and the line belongs to the prompt
// loop.
func (c *Controller) offerSelection(line string) bool {
	c.selMu.Lock()
	ch := c.selCh
	c.selMu.Unlock()

	if ch == nil {
		return false
	}
	select {
	case ch <- line:
		return true
	default:
		return false
	}
}

// selectCandidate prompts the operator to pick one of several wireless
// candidates. It runs on the connecting goroutine and blocks on input;
// the reply is claimed before the prompt loop can see it.
func (c *Controller) selectCandidate(candidates []transport.Candidate) (int, error) {
	ch := make(chan string, 1)
	c.selMu.Lock()
	if c.selCh != nil {
		c.selMu.Unlock()
		return 0, errors.New("another selection prompt is already pending")
	}
	c.selCh = ch
	c.selMu.Unlock()
	defer func() {
		c.selMu.Lock()
		c.selCh = nil
		c.selMu.Unlock()
	}()

	table := uitable.New()
	table.AddRow("INDEX", "NAME", "ADDRESS")
	for i, cand := range candidates {
		table.AddRow(strconv.Itoa(i), cand.Name, cand.ID)
	}
	fmt.Fprintln(c.out, table)
	fmt.Fprintf(c.out, "Select a device [0-%d]: ", len(candidates)-1)

	select {
	case line := <-ch:
		idx, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			return 0, fmt.Errorf("not a device index: %q", line)
		}
		return idx, nil
	case err := <-c.inErr:
		// Put the terminal error back for the prompt loop to observe.
		select {
		case c.inErr <- err:
		default:
		}
		return 0, device.ErrSelectionAborted
	}
}
