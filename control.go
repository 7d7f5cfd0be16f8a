package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"rishta/server"
)

// counters is the part of storage the stats command reports on.
type counters interface {
	CountUsers(ctx context.Context) (int, error)
	CountConversations(ctx context.Context) (int, error)
	CountMessages(ctx context.Context) (int, error)
}

// control serves one-line management commands on a unix socket:
//
//	stats
//	shutdown|reason|completion-time
type control struct {
	path     string
	tcp      *server.Server
	counters counters
	logger   *slog.Logger
	stop     context.CancelFunc

	shuttingDown atomic.Bool
}

func (c *control) serve(ctx context.Context) error {
	// A stale socket from a crashed run blocks Listen.
	os.Remove(c.path)

	listener, err := net.Listen("unix", c.path)
	if err != nil {
		c.logger.Warn("control socket unavailable", "path", c.path, "error", err)
		<-ctx.Done()
		return nil
	}
	defer os.Remove(c.path)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	c.logger.Info("control socket listening", "path", c.path)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			continue
		}
		go c.handle(ctx, conn)
	}
}

func (c *control) shutdownRequested() bool {
	return c.shuttingDown.Load()
}

func (c *control) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return
	}
	parts := strings.SplitN(strings.TrimSpace(line), "|", 3)

	switch parts[0] {
	case "stats":
		stats, err := c.stats(ctx)
		if err != nil {
			c.logger.Error("stats failed", "error", err)
			conn.Write([]byte("ERROR|" + err.Error() + "\n"))
			return
		}
		conn.Write([]byte("OK|" + stats + "\n"))

	case "shutdown":
		reason := "maintenance"
		var completionTime time.Time
		if len(parts) >= 2 && parts[1] != "" {
			reason = parts[1]
		}
		if len(parts) >= 3 && parts[2] != "" {
			completionTime, err = time.Parse(time.RFC3339, parts[2])
			if err != nil {
				conn.Write([]byte("ERROR|completion time must be RFC3339\n"))
				return
			}
		}

		conn.Write([]byte("OK|Shutting down\n"))
		c.logger.Info("shutdown requested", "reason", reason, "completion", completionTime)

		c.shuttingDown.Store(true)
		c.tcp.Shutdown(reason, completionTime)
		c.stop()

	default:
		conn.Write([]byte("ERROR|Unknown command\n"))
	}
}

func (c *control) stats(ctx context.Context) (string, error) {
	users, err := c.counters.CountUsers(ctx)
	if err != nil {
		return "", err
	}
	conversations, err := c.counters.CountConversations(ctx)
	if err != nil {
		return "", err
	}
	messages, err := c.counters.CountMessages(ctx)
	if err != nil {
		return "", err
	}
	return c.tcp.GetStats() +
		",registered=" + strconv.Itoa(users) +
		",conversations=" + strconv.Itoa(conversations) +
		",messages=" + strconv.Itoa(messages), nil
}

// sendControl writes one command line to the socket at path and returns
// the reply.
func sendControl(path, line string) (string, error) {
	conn, err := net.DialTimeout("unix", path, 3*time.Second)
	if err != nil {
		return "", fmt.Errorf("connect to %s: %w", path, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		return "", err
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if msg, ok := strings.CutPrefix(reply, "ERROR|"); ok {
		return "", errors.New(msg)
	}
	return strings.TrimPrefix(reply, "OK|"), nil
}
