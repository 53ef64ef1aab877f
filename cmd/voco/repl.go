package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"voco/internal/client"
	"voco/internal/config"
)

// runInteractive drives the session until the user quits or the process is
// signalled. Without a TTY the input loop is skipped and the client runs
// headless, which is how the inspection server is used in practice.
func runInteractive(c *client.Client, cfg config.Config, isTTY bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Run(ctx) })

	if isTTY {
		fmt.Printf("voco session -> %s (type /help for commands)\n", cfg.WithDefaults().Endpoint())
		g.Go(func() error {
			inputLoop(ctx, c, stop)
			return nil
		})
	}

	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

func inputLoop(ctx context.Context, c *client.Client, stop func()) {
	scanner := bufio.NewScanner(os.Stdin)
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				stop()
				return
			}
			if !handleLine(c, strings.TrimSpace(line), stop) {
				return
			}
		}
	}
}

// handleLine dispatches one input line. It returns false when the loop
// should stop.
func handleLine(c *client.Client, line string, stop func()) bool {
	switch {
	case line == "":
		return true
	case line == "/quit" || line == "/exit":
		stop()
		return false
	case line == "/help":
		fmt.Print(`commands:
  /approve       approve the pending plan
  /reject        reject the pending plan
  /stop          stop the current generation
  /mic           start voice recording
  /mic off       stop voice recording
  /tts on|off    toggle speech output
  /quit          leave the session
anything else is sent to the agent as text
`)
	case line == "/approve":
		report(c.ApprovePlan())
	case line == "/reject":
		report(c.RejectPlan())
	case line == "/stop":
		report(c.StopGeneration())
	case line == "/mic":
		report(c.StartRecording())
	case line == "/mic off":
		report(c.StopRecording())
	case line == "/tts on":
		report(c.ToggleTTS(true))
	case line == "/tts off":
		report(c.ToggleTTS(false))
	case strings.HasPrefix(line, "/"):
		fmt.Printf("unknown command %s (try /help)\n", line)
	default:
		report(c.SendText(line))
	}
	return true
}

func report(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
}
