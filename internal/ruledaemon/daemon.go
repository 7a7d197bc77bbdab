// Package ruledaemon listens on a local control socket for streamed
// JSON ruleset documents and hot-swaps every core's compiled matcher
// without ever pausing the data plane.
package ruledaemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/pavelkim/flowtap/internal/logger"
	"github.com/pavelkim/flowtap/internal/ruleset"
)

// document is one control-socket message: {"rules": ["pat1", "pat2"]}.
type document struct {
	Rules []string `json:"rules"`
}

// Daemon hot-swaps a fixed set of per-core rule cells in lockstep.
type Daemon struct {
	socketPath string
	cells      []*ruleset.Cell
	log        *logger.Logger
	listener   net.Listener
}

// New builds a Daemon that will update every cell in cells together.
func New(socketPath string, cells []*ruleset.Cell, log *logger.Logger) *Daemon {
	return &Daemon{socketPath: socketPath, cells: cells, log: log}
}

// Listen binds the control socket. Failure here is a startup error: a
// rule daemon that cannot bind its socket leaves the data plane
// permanently unreachable for updates.
func (d *Daemon) Listen() error {
	_ = os.Remove(d.socketPath)

	l, err := net.Listen("unix", d.socketPath)
	if err != nil {
		return fmt.Errorf("ruledaemon: listen on %s: %w", d.socketPath, err)
	}
	d.listener = l
	return nil
}

// Serve accepts connections until ctx is canceled, then closes the
// listener and removes the socket file. Must be called after Listen.
func (d *Daemon) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		d.listener.Close()
	}()

	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				os.Remove(d.socketPath)
				return
			}
			d.log.Warn("ruledaemon: accept failed", "error", err)
			continue
		}
		go d.handle(conn)
	}
}

// handle decodes a stream of concatenated JSON documents from conn,
// compiling and installing each successfully-parsed ruleset. A
// malformed document is logged and the connection is closed: the
// standard library decoder cannot resynchronize mid-stream after a
// syntax error, so there is no safe way to keep reading on the same
// connection.
func (d *Daemon) handle(conn net.Conn) {
	defer conn.Close()

	dec := json.NewDecoder(conn)
	for {
		var doc document
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			d.log.Warn("ruledaemon: malformed ruleset document, closing connection", "error", err)
			return
		}

		matcher, err := ruleset.Compile(doc.Rules)
		if err != nil {
			d.log.Warn("ruledaemon: invalid rule pattern, keeping previous ruleset", "error", err)
			continue
		}

		for _, cell := range d.cells {
			cell.Swap(matcher)
		}
		d.log.Info("ruledaemon: ruleset updated", "rules", len(doc.Rules))
	}
}
