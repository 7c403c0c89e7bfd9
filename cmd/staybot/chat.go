package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hrygo/staybot/plugin/ai/metrics"
	"github.com/hrygo/staybot/plugin/ai/session"
)

const chatHelp = `Lệnh:
  /new          bắt đầu phiên mới
  /pick N       chọn gợi ý số N
  /sessions     liệt kê các phiên đã lưu
  /restore ID   mở lại một phiên
  /more         tải thêm tin nhắn cũ hơn
  /stats        thống kê độ trễ
  /help         hiện danh sách lệnh
  /quit         thoát`

func newChatCmd(a *app) *cobra.Command {
	var filters map[string]string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			job := session.NewCleanupJob(a.store, session.DefaultCleanupInterval, a.logger)
			job.Start(cmd.Context())
			defer job.Stop()

			r := &repl{store: a.store, stats: a.stats, out: a.out, opts: sendOptions(filters)}
			return r.run(cmd.Context(), a.in)
		},
	}
	cmd.Flags().StringToStringVar(&filters, "filter", nil, "extra request filter as key=value (repeatable)")
	return cmd
}

type repl struct {
	store *session.Store
	stats *metrics.Aggregator
	out   io.Writer
	opts  *session.SendOptions
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintf(r.out, "Phiên %s. Gõ /help để xem lệnh.\n", r.store.SessionToken())

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			r.send(ctx, line)
			continue
		}
		if quit := r.command(ctx, line); quit {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// command runs one slash command and reports whether the loop should end.
func (r *repl) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, chatHelp)
	case "/new":
		fmt.Fprintf(r.out, "Đã bắt đầu phiên mới %s\n", r.store.StartNewSession())
	case "/pick":
		r.pick(ctx, arg)
	case "/sessions":
		sessions := r.store.LoadSessions(ctx)
		if msg := r.store.Snapshot().HistoryError; msg != "" {
			fmt.Fprintf(r.out, "Lỗi: %s\n", msg)
			return false
		}
		printSessions(r.out, sessions)
	case "/restore":
		if arg == "" {
			fmt.Fprintln(r.out, "Cách dùng: /restore ID")
			return false
		}
		r.store.RestoreSession(ctx, arg)
		r.printHistory()
	case "/more":
		if len(r.store.LoadMore(ctx)) == 0 {
			if msg := r.store.Snapshot().HistoryError; msg != "" {
				fmt.Fprintf(r.out, "Lỗi: %s\n", msg)
			} else {
				fmt.Fprintln(r.out, "Không còn tin nhắn cũ hơn.")
			}
			return false
		}
		r.printHistory()
	case "/stats":
		r.printStats()
	default:
		fmt.Fprintf(r.out, "Lệnh không hợp lệ: %s\n", name)
	}
	return false
}

func (r *repl) send(ctx context.Context, text string) {
	if err := r.store.SendMessage(ctx, text, r.opts); err != nil {
		msg := r.store.Snapshot().LastError
		if msg == "" {
			msg = err.Error()
		}
		fmt.Fprintf(r.out, "Lỗi: %s\n", msg)
		return
	}
	printReply(r.out, r.store.Snapshot())
}

func (r *repl) pick(ctx context.Context, arg string) {
	options := r.store.Snapshot().ClarificationOptions
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(options) {
		if len(options) == 0 {
			fmt.Fprintln(r.out, "Không có gợi ý nào để chọn.")
		} else {
			fmt.Fprintf(r.out, "Hãy chọn một số từ 1 đến %d.\n", len(options))
		}
		return
	}
	if err := r.store.ChooseSuggestion(ctx, options[n-1]); err != nil {
		fmt.Fprintf(r.out, "Lỗi: %s\n", r.store.Snapshot().LastError)
		return
	}
	printReply(r.out, r.store.Snapshot())
}

func (r *repl) printHistory() {
	state := r.store.Snapshot()
	if state.HistoryError != "" {
		fmt.Fprintf(r.out, "Lỗi: %s\n", state.HistoryError)
		return
	}
	for _, m := range state.Messages {
		label := "Bạn"
		if m.Role == session.RoleAssistant {
			label = "Trợ lý"
		}
		fmt.Fprintf(r.out, "%s: %s\n", label, m.Content)
	}
	if state.Pagination.HasMore {
		fmt.Fprintln(r.out, "(gõ /more để xem tin nhắn cũ hơn)")
	}
}

func (r *repl) printStats() {
	stats := r.stats.Stats()
	fmt.Fprintf(r.out, "Yêu cầu: %d, thành công: %d, p50: %s, p95: %s\n",
		stats.RequestCount, stats.SuccessCount, stats.LatencyP50, stats.LatencyP95)
	for _, name := range stats.OperationNames() {
		op := stats.Operations[name]
		fmt.Fprintf(r.out, "  %s  %d lần, %.0f%% thành công, trung bình %s\n",
			fit(name, 14), op.Count, op.SuccessRate*100, op.AvgLatency)
	}
	for code, n := range stats.ErrorsByCode {
		fmt.Fprintf(r.out, "  lỗi %s: %d\n", code, n)
	}
}
