// ABOUTME: Interactive terminal chat against an in-process conversation store
// ABOUTME: Each line is recorded as a user message and answered with a generated reply

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/coven-chat/internal/config"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/gateway"
)

// parseUserFlag reads --user NAME, --user=NAME, -u NAME, or -u=NAME.
func parseUserFlag(args []string) (string, error) {
	var user string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--user" || arg == "-u":
			if i+1 >= len(args) {
				return "", fmt.Errorf("--user requires a value")
			}
			user = args[i+1]
			i++
		case strings.HasPrefix(arg, "--user="):
			user = strings.TrimPrefix(arg, "--user=")
		case strings.HasPrefix(arg, "-u="):
			user = strings.TrimPrefix(arg, "-u=")
		case strings.HasPrefix(arg, "-"):
			return "", fmt.Errorf("unknown flag: %s", arg)
		default:
			return "", fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	user = strings.TrimSpace(user)
	if user == "" {
		return "", fmt.Errorf("--user flag is required")
	}
	return user, nil
}

func runChat(ctx context.Context, args []string) error {
	user, err := parseUserFlag(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Keep log lines off the conversation: warnings and above, on stderr.
	logCfg := cfg.Logging
	if parseLevel(logCfg.Level) < slog.LevelWarn {
		logCfg.Level = "warn"
	}
	logger := setupLogger(logCfg, os.Stderr)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	defer func() { _ = gw.Shutdown(context.Background()) }()

	session := &chatSession{
		store: gw.Store(),
		user:  user,
		in:    os.Stdin,
		out:   os.Stdout,
	}
	return session.run(ctx)
}

// chatSession drives one user's conversation from a line-oriented reader.
type chatSession struct {
	store *conversation.Store
	user  string
	in    io.Reader
	out   io.Writer
}

func (s *chatSession) run(ctx context.Context) error {
	conv, created := s.store.CreateOrGetConversation(s.user)

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	if created {
		cyan.Fprintf(s.out, "Started a new conversation for %s.\n", s.user)
	} else {
		cyan.Fprintf(s.out, "Resuming %q for %s.\n", conv.Title, s.user)
	}
	gray.Fprintln(s.out, "Commands: /list, /title, /quit")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(s.out, "> ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/list":
			s.printList()
			continue
		case "/title":
			s.printTitle(conv.ID)
			continue
		}

		if !s.say(ctx, conv.ID, line) {
			// The conversation vanished; start over under the same user.
			conv, _ = s.store.CreateOrGetConversation(s.user)
			s.say(ctx, conv.ID, line)
		}
	}
}

// say records text and prints the assistant's answer. It reports false when
// the conversation no longer exists.
func (s *chatSession) say(ctx context.Context, id, text string) bool {
	if _, ok := s.store.AppendUserMessage(id, text); !ok {
		return false
	}
	if s.store.Mode() != conversation.ModeRemote {
		return true
	}

	reply, ok := s.store.GenerateReply(ctx, id)
	if !ok {
		return false
	}
	if reply.IsFromUser {
		color.New(color.FgYellow).Fprintln(s.out, "(no reply, try again)")
		return true
	}
	color.New(color.FgGreen).Fprintln(s.out, reply.Text)
	return true
}

func (s *chatSession) printList() {
	gray := color.New(color.FgHiBlack)
	for _, c := range s.store.ListConversations() {
		fmt.Fprintf(s.out, "  %-20s %s", c.UserName, c.Title)
		gray.Fprintf(s.out, " (%d messages)\n", len(c.Messages))
	}
}

func (s *chatSession) printTitle(id string) {
	conv, ok := s.store.GetConversation(id)
	if !ok {
		fmt.Fprintln(s.out, conversation.DefaultTitle)
		return
	}
	fmt.Fprintln(s.out, conv.Title)
}
