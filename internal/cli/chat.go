// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-router/internal/config"
	"github.com/jeranaias/rigrun-router/internal/router"
)

// =============================================================================
// INPUT
// =============================================================================

// lineReader reads one line of user input per prompt. io.EOF ends the REPL.
type lineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// historyReader provides line editing and persistent history on a terminal.
type historyReader struct {
	line        *liner.State
	historyFile string
}

func newHistoryReader() *historyReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	r := &historyReader{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(r.historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return r
}

func (r *historyReader) Prompt(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the terminal.
func (r *historyReader) Close() error {
	defer r.line.Close()
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = r.line.WriteHistory(f)
	return err
}

// plainReader reads lines from a pipe or file, echoing the prompt.
type plainReader struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func newPlainReader(in io.Reader, out io.Writer) *plainReader {
	return &plainReader{scanner: bufio.NewScanner(in), out: out}
}

func (r *plainReader) Prompt(prompt string) (string, error) {
	io.WriteString(r.out, prompt)
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *plainReader) Close() error { return nil }

// =============================================================================
// CHAT COMMAND
// =============================================================================

// chatState is the REPL state.
type chatState struct {
	rt         *router.Router
	in         lineReader
	sessionID  string
	lastPrompt string
}

func newChatCmd(a *app) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive local-first routing",
		Long: `Chat routes every line you enter. When a local answer falls short you
are asked whether to upgrade to a cloud model.

Commands:
  /new              start a new session with the next prompt
  /status           show the current session
  /upgrade [model]  answer the last prompt with a cloud model
  /quit             end the session and exit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.Router(ctx)
			if err != nil {
				return err
			}
			if err := a.resumeSession(ctx, rt, sessionID); err != nil {
				return err
			}

			var in lineReader
			if f, ok := a.in.(*os.File); ok && f == os.Stdin && isTerminal(f) {
				in = newHistoryReader()
			} else {
				in = newPlainReader(a.in, a.out)
			}
			defer in.Close()

			st := &chatState{rt: rt, in: in, sessionID: sessionID}
			return a.chatLoop(ctx, st)
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id to continue")
	return cmd
}

func (a *app) chatLoop(ctx context.Context, st *chatState) error {
	s := a.styles
	a.println(s.Rule(0))
	a.println(s.Title.Render("rigrun chat - local-first routing"))
	a.println(s.Rule(0))
	a.println(s.Dim.Render("Commands: /new  /status  /upgrade [model]  /quit"))
	a.println()

	for {
		if ctx.Err() != nil {
			a.endChatSession(st)
			return nil
		}
		input, err := st.in.Prompt(s.Prompt.Render("rigrun> "))
		if errors.Is(err, io.EOF) {
			a.println()
			a.endChatSession(st)
			a.println(s.Dim.Render("Goodbye!"))
			return nil
		}
		if err != nil {
			return err
		}

		input = normalizePrompt(input)
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			if !a.chatCommand(ctx, st, input) {
				a.println(s.Dim.Render("Goodbye!"))
				return nil
			}
			continue
		}

		if err := a.chatRoute(ctx, st, input); err != nil {
			a.println(s.Status("error"), err.Error())
		}
	}
}

// chatCommand runs one slash command and reports whether to keep going.
func (a *app) chatCommand(ctx context.Context, st *chatState, input string) bool {
	s := a.styles
	fields := strings.Fields(input)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit", "/q":
		a.endChatSession(st)
		return false

	case "/new":
		a.endChatSession(st)
		a.println(s.Status("ok"), "New session will start with the next prompt")

	case "/status":
		if st.sessionID == "" {
			a.println(s.Status("warning"), "No active session")
			return true
		}
		status, err := st.rt.SessionStatus(st.sessionID)
		if err != nil {
			a.println(s.Status("error"), err.Error())
			return true
		}
		a.println(s.Section.Render("Session Status"))
		a.println(s.Field("ID:", status.SessionID))
		a.println(s.Field("Tier:", string(status.Tier)))
		a.println(s.Field("Tasks:", fmt.Sprint(status.TaskCount)))
		a.println(s.Field("Total cost:", fmt.Sprintf("$%.6f", status.TotalCost)))

	case "/upgrade":
		if st.sessionID == "" || st.lastPrompt == "" {
			a.println(s.Status("warning"), "Nothing to upgrade yet")
			return true
		}
		model := ""
		if len(fields) > 1 {
			model = fields[1]
		}
		a.chatUpgrade(ctx, st, model)

	default:
		a.println(s.Status("warning"), "Unknown command: "+fields[0])
	}
	return true
}

func (a *app) chatRoute(ctx context.Context, st *chatState, prompt string) error {
	res, err := st.rt.Route(ctx, prompt, st.sessionID, false)
	if err != nil {
		return err
	}
	st.sessionID = res.Session.SessionID
	st.lastPrompt = prompt
	a.printResult(res, st.rt.Thresholds())

	if res.Status != router.StatusLocalLimited || len(res.UpgradeOptions) == 0 {
		return nil
	}

	answer, err := st.in.Prompt(a.styles.Prompt.Render("\nUpgrade to cloud? [y/n]: "))
	if err != nil || !strings.EqualFold(strings.TrimSpace(answer), "y") {
		return nil
	}

	a.println("\nSelect model (or press Enter for best option):")
	for i, opt := range res.UpgradeOptions {
		a.printf("  %d. %s\n", i+1, opt.Model)
	}
	choice, err := st.in.Prompt("\nChoice [1]: ")
	if err != nil {
		return nil
	}
	model := ""
	if n, convErr := strconv.Atoi(strings.TrimSpace(choice)); convErr == nil && n >= 1 && n <= len(res.UpgradeOptions) {
		model = res.UpgradeOptions[n-1].Model
	}
	a.chatUpgrade(ctx, st, model)
	return nil
}

func (a *app) chatUpgrade(ctx context.Context, st *chatState, model string) {
	res, err := st.rt.UpgradeToCloud(ctx, st.sessionID, st.lastPrompt, model)
	if err != nil {
		a.println(a.styles.Status("error"), err.Error())
		return
	}
	a.printResult(res, st.rt.Thresholds())
}

// endChatSession ends the current session, if any.
func (a *app) endChatSession(st *chatState) {
	if st.sessionID == "" {
		return
	}
	// The command context may already be canceled on interrupt.
	if err := st.rt.EndSession(context.Background(), st.sessionID); err != nil {
		a.logger.Debug("end session failed", zap.String("session_id", st.sessionID), zap.Error(err))
	}
	st.sessionID = ""
	st.lastPrompt = ""
}
