package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hrygo/staybot/plugin/ai/session"
	"github.com/hrygo/staybot/plugin/ai/transcript"
	"github.com/hrygo/staybot/plugin/travelapi"
)

const (
	sessionIDWidth = 36
	dateLayout     = "2006-01-02 15:04"
)

func newAskCmd(a *app) *cobra.Command {
	var filters map[string]string

	cmd := &cobra.Command{
		Use:   "ask MESSAGE...",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.SendMessage(cmd.Context(), strings.Join(args, " "), sendOptions(filters)); err != nil {
				if msg := a.store.Snapshot().LastError; msg != "" {
					return errors.New(msg)
				}
				return err
			}
			printReply(a.out, a.store.Snapshot())
			return nil
		},
	}
	cmd.Flags().StringToStringVar(&filters, "filter", nil, "extra request filter as key=value (repeatable)")
	return cmd
}

func newSessionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List stored chat sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessions := a.store.LoadSessions(cmd.Context())
			if msg := a.store.Snapshot().HistoryError; msg != "" {
				return errors.New(msg)
			}
			printSessions(a.out, sessions)
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var (
		page     int
		pageSize int
		format   string
		output   string
	)

	cmd := &cobra.Command{
		Use:   "history SESSION_ID",
		Short: "Print one page of a session's history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := transcript.ParseFormat(format)
			if err != nil {
				return err
			}
			if pageSize <= 0 {
				pageSize = a.profile.PageSize
			}

			msgs := a.store.LoadMessages(cmd.Context(), args[0], page, pageSize)
			state := a.store.Snapshot()
			if state.HistoryError != "" {
				return errors.New(state.HistoryError)
			}

			exporter, err := transcript.New(f, &transcript.Options{
				SessionID:         args[0],
				IncludeTimestamps: true,
				Location:          time.Local,
			})
			if err != nil {
				return err
			}
			data, err := exporter.Export(msgs)
			if err != nil {
				return err
			}

			if output != "" {
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return errors.Wrapf(err, "failed to write %s", output)
				}
				fmt.Fprintf(a.out, "Đã lưu %d tin nhắn vào %s\n", len(msgs), output)
			} else if _, err := a.out.Write(data); err != nil {
				return err
			}
			if state.Pagination.HasMore {
				fmt.Fprintf(a.errOut, "Còn tin nhắn cũ hơn: --page %d\n", state.Pagination.Page+1)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number, starting at 1")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "messages per page (default from config)")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, markdown or html")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

func newAutocompleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "autocomplete QUERY",
		Short: "Suggest place names for a partial query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range a.store.Autocomplete(cmd.Context(), strings.Join(args, " ")) {
				fmt.Fprintln(a.out, name)
			}
			return nil
		},
	}
}

func sendOptions(filters map[string]string) *session.SendOptions {
	if len(filters) == 0 {
		return nil
	}
	opts := &session.SendOptions{Filters: make(map[string]any, len(filters))}
	for k, v := range filters {
		opts.Filters[k] = v
	}
	return opts
}

// printReply writes the newest assistant message and, when present, the numbered options.
func printReply(w io.Writer, state session.State) {
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Role == session.RoleAssistant {
			fmt.Fprintln(w, state.Messages[i].Content)
			break
		}
	}
	for i, opt := range state.ClarificationOptions {
		fmt.Fprintf(w, "  %d) %s\n", i+1, opt)
	}
}

func printSessions(w io.Writer, sessions []travelapi.SessionSummary) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "Chưa có phiên trò chuyện nào.")
		return
	}
	fmt.Fprintf(w, "%s  %s  %s\n", fit("PHIÊN", sessionIDWidth), fit("GẦN NHẤT", len(dateLayout)), "LƯỢT")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s  %s  %d\n",
			fit(s.SessionID, sessionIDWidth),
			fit(formatDate(s.LastMessageAt), len(dateLayout)),
			s.TurnCount,
		)
	}
}

// fit truncates or pads s to exactly width terminal columns.
func fit(s string, width int) string {
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(dateLayout)
}
