// Package main is a terminal client for a narrative game session. It
// connects to the realtime endpoint, joins a session, streams the
// translated narrative to the terminal, and submits typed lines as
// actions.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/emberloom/sagalink/internal/client"
	"github.com/emberloom/sagalink/internal/config"
	"github.com/emberloom/sagalink/internal/game"
	"github.com/emberloom/sagalink/pkg/logger"
)

var (
	gmStyle     = color.New(color.FgCyan)
	userStyle   = color.New(color.FgGreen)
	systemStyle = color.New(color.FgYellow)
	errorStyle  = color.New(color.FgRed, color.Bold)
	choiceStyle = color.New(color.FgMagenta)
)

func main() {
	sessionID := flag.String("session", "", "game session id to join")
	userID := flag.String("user", "", "participant user id")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Environment: cfg.AppEnv,
		LogLevel:    cfg.LogLevel,
		ServiceName: "sagalink",
	})
	defer log.Sync() //nolint:errcheck // stdout sync failure is harmless on exit

	if err := run(cfg, log, *sessionID, *userID); err != nil && err != context.Canceled {
		log.Error("client exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger, sessionID, userID string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := client.New(cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	printer := newPrinter(c)
	defer printer.stop()

	c.Connect(ctx)

	if sessionID == "" {
		resumed, err := c.ResumeActiveSession(ctx, userID)
		if err != nil {
			return err
		}
		if resumed == "" {
			return fmt.Errorf("no session to resume; pass -session")
		}
		sessionID = resumed
		systemStyle.Printf("* resumed session %s\n", sessionID)
	} else if err := c.JoinSession(ctx, sessionID, userID); err != nil {
		return err
	}

	for _, msg := range c.Messages(sessionID) {
		printMessage(msg)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})
	g.Go(func() error {
		return readInput(ctx, c, sessionID, userID)
	})
	return g.Wait()
}

// readInput submits each typed line as a game action; lines starting
// with "/say " go out as chat.
func readInput(ctx context.Context, c *client.Client, sessionID, userID string) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !c.Connected() {
			errorStyle.Println("* not connected; action dropped")
			continue
		}
		var err error
		switch {
		case line == "/quit":
			return context.Canceled
		case line == "/leave":
			c.LeaveSession(ctx, sessionID, userID)
			return context.Canceled
		case strings.HasPrefix(line, "/say "):
			err = c.SendChat(ctx, sessionID, userID, strings.TrimPrefix(line, "/say "))
		default:
			err = c.SubmitAction(ctx, sessionID, userID, line)
		}
		if err != nil {
			errorStyle.Printf("* %v\n", err)
		}
	}
	return scanner.Err()
}

// printer subscribes to the domain events the terminal renders.
type printer struct {
	unsubs []func()
}

func newPrinter(c *client.Client) *printer {
	p := &printer{}
	sub := func(kind game.Kind, fn func(game.Event)) {
		p.unsubs = append(p.unsubs, c.Subscribe(kind, fn))
	}

	sub(game.KindMessageAdded, func(e game.Event) {
		if e.Message != nil {
			printMessage(*e.Message)
		}
	})
	sub(game.KindNarrative, func(e game.Event) {
		gmStyle.Println(e.Narrative)
	})
	sub(game.KindChoicesUpdate, func(e game.Event) {
		for i, choice := range e.Choices {
			choiceStyle.Printf("  [%d] %s\n", i+1, choice.Text)
		}
	})
	sub(game.KindError, func(e game.Event) {
		errorStyle.Printf("! %s\n", e.ErrorText)
	})
	sub(game.KindNotification, func(e game.Event) {
		systemStyle.Printf("* %s\n", e.Narrative)
	})
	sub(game.KindProcessingStarted, func(_ game.Event) {
		systemStyle.Println("* the storyteller is thinking...")
	})
	sub(game.KindNPCEncounter, func(e game.Event) {
		for _, npc := range e.NPCs {
			systemStyle.Printf("* you encounter %s\n", npc.Name)
		}
	})
	sub(game.KindSessionEndingProposal, func(_ game.Event) {
		systemStyle.Println("* the story is drawing to a close")
	})
	sub(game.KindSessionResultReady, func(_ game.Event) {
		systemStyle.Println("* the session result is ready")
	})
	return p
}

func (p *printer) stop() {
	for _, unsub := range p.unsubs {
		unsub()
	}
}

func printMessage(msg game.Message) {
	switch msg.Origin {
	case game.OriginUser:
		userStyle.Printf("> %s\n", msg.Content)
	case game.OriginSystem:
		systemStyle.Printf("* %s\n", msg.Content)
	default:
		gmStyle.Println(msg.Content)
	}
}
