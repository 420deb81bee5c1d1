package repl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/InsulaLabs/msdscript/internal/history"
	"github.com/InsulaLabs/msdscript/internal/runner"
	"github.com/InsulaLabs/msdscript/pkg/expr"
	"github.com/InsulaLabs/msdscript/pkg/interp"
	"github.com/InsulaLabs/msdscript/pkg/parse"
	"github.com/google/uuid"
)

type SessionConfig struct {
	Logger               *slog.Logger
	UserID               string
	Prompt               string
	ContinuationPrompt   string
	ActiveCursorSymbol   string
	InactiveCursorSymbol string
	Runner               *runner.Runner
	History              *history.Store // optional
	HistoryLimit         int            // entries shown by :history and kept by Close
}

// ResponseKind tells a front end how to present a Response.
type ResponseKind int

const (
	ResponseNone ResponseKind = iota
	ResponseResult
	ResponseError
	ResponseInfo
)

type Response struct {
	Kind   ResponseKind
	Source string
	Text   string

	// Continue is set when the input so far is an incomplete expression and
	// the front end should read another line.
	Continue bool
	Quit     bool
}

// Session is the state behind one interactive user: line history, the
// current output mode and the definitions made with :def.
type Session struct {
	sessionID string
	logger    *slog.Logger
	config    SessionConfig
	ctx       context.Context

	history       []string
	historyIndex  int
	currentBuffer string
	inHistoryMode bool

	mode    runner.Mode
	env     *interp.Env
	pending string

	startTimestamp time.Time
}

func NewSession(ctx context.Context, config SessionConfig) *Session {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Prompt == "" {
		config.Prompt = "msd> "
	}
	if config.ContinuationPrompt == "" {
		config.ContinuationPrompt = strings.Repeat(".", max(len(strings.TrimRight(config.Prompt, " ")), 3)) + " "
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 100
	}
	if config.Runner == nil {
		config.Runner = runner.New(runner.Config{Logger: config.Logger})
	}

	id := uuid.New().String()
	return &Session{
		sessionID:      id,
		logger:         config.Logger.WithGroup("session").With("session_id", id),
		config:         config,
		ctx:            ctx,
		history:        []string{},
		historyIndex:   -1,
		mode:           runner.ModeInterp,
		env:            interp.Empty,
		startTimestamp: time.Now(),
	}
}

func (s *Session) ID() string {
	return s.sessionID
}

func (s *Session) Mode() runner.Mode {
	return s.mode
}

func (s *Session) Env() *interp.Env {
	return s.env
}

func (s *Session) Uptime() time.Duration {
	return time.Since(s.startTimestamp)
}

func (s *Session) GetPrompt() string {
	if s.pending != "" {
		return s.config.ContinuationPrompt
	}
	return s.config.Prompt
}

func (s *Session) GetActiveCursorSymbol() string {
	return s.config.ActiveCursorSymbol
}

func (s *Session) GetInactiveCursorSymbol() string {
	return s.config.InactiveCursorSymbol
}

func (s *Session) AddToHistory(cmd string) {
	if cmd != "" {
		s.history = append(s.history, cmd)
		s.historyIndex = len(s.history)
		s.inHistoryMode = false
	}
}

func (s *Session) StartHistoryNavigation(currentBuffer string) {
	if !s.inHistoryMode {
		s.currentBuffer = currentBuffer
		s.inHistoryMode = true
		s.historyIndex = len(s.history)
	}
}

func (s *Session) IsInHistoryMode() bool {
	return s.inHistoryMode
}

// NavigateHistory moves through previous inputs. Moving down past the newest
// entry restores the line that was being edited.
func (s *Session) NavigateHistory(up bool) string {
	if len(s.history) == 0 {
		return s.currentBuffer
	}

	if up {
		if s.historyIndex > 0 {
			s.historyIndex--
		}
		return s.history[s.historyIndex]
	}

	if s.historyIndex < len(s.history)-1 {
		s.historyIndex++
		return s.history[s.historyIndex]
	}
	s.historyIndex = len(s.history)
	s.inHistoryMode = false
	return s.currentBuffer
}

func (s *Session) GetHistory() []string {
	return s.history
}

// Submit takes one line of input. Lines are accumulated while they form an
// incomplete expression; an empty line forces evaluation of what has been
// collected so far.
func (s *Session) Submit(line string) Response {
	src := line
	force := false
	if s.pending != "" {
		if strings.TrimSpace(line) == "" {
			src = s.pending
			force = true
		} else {
			src = s.pending + "\n" + line
		}
		s.pending = ""
	}

	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return Response{Kind: ResponseNone}
	}
	if strings.HasPrefix(trimmed, ":") {
		s.AddToHistory(trimmed)
		resp := s.command(trimmed)
		resp.Source = trimmed
		return resp
	}

	if !force {
		if _, err := s.config.Runner.Parse(src); parse.IsIncomplete(err) {
			s.pending = src
			return Response{Kind: ResponseNone, Source: src, Continue: true}
		}
	}

	s.AddToHistory(strings.ReplaceAll(trimmed, "\n", " "))
	return s.Evaluate(src)
}

// Reset drops any partially entered expression.
func (s *Session) Reset() {
	s.pending = ""
}

// Evaluate runs src in the current mode and environment.
func (s *Session) Evaluate(src string) Response {
	s.logger.Debug("evaluating", "mode", s.mode, "source", src)

	out, err := s.config.Runner.RunIn(s.ctx, s.mode, src, s.env)
	s.record(src, out, err)
	if err != nil {
		return Response{Kind: ResponseError, Source: src, Text: FormatError(err, src)}
	}
	return Response{Kind: ResponseResult, Source: src, Text: out}
}

func (s *Session) record(src, out string, err error) {
	if s.config.History == nil {
		return
	}
	entry := history.Entry{Mode: string(s.mode), Source: src, Output: out}
	if err != nil {
		entry.Error = err.Error()
	}
	if herr := s.config.History.Append(s.sessionID, entry); herr != nil {
		s.logger.Warn("could not record history", "error", herr)
	}
}

// FormatError renders err the way every front end shows it.
func FormatError(err error, src string) string {
	var pe *parse.ParseError
	if errors.As(err, &pe) {
		return parse.Snippet(err, src)
	}
	var re *interp.RuntimeError
	if errors.As(err, &re) {
		return "runtime error: " + re.Message
	}
	return err.Error()
}

const helpText = `Enter an expression to run it in the current mode.

Commands:
  :mode [interp|print|pretty-print]  show or change the output mode
  :def <name> = <expr>               evaluate expr and bind it to name
  :env                               list the names bound with :def
  :history [n]                       show the last n inputs
  :sessions                          list sessions with stored history
  :help                              show this help
  :quit                              leave the session`

func (s *Session) command(line string) Response {
	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "quit", "exit", "q":
		return Response{Kind: ResponseInfo, Text: "Goodbye!", Quit: true}
	case "help", "h":
		return Response{Kind: ResponseInfo, Text: helpText}
	case "mode":
		if arg == "" {
			return Response{Kind: ResponseInfo, Text: "mode: " + string(s.mode)}
		}
		m, err := runner.ParseMode(arg)
		if err != nil {
			return Response{Kind: ResponseError, Text: err.Error()}
		}
		s.mode = m
		return Response{Kind: ResponseInfo, Text: "mode: " + string(m)}
	case "def":
		return s.define(arg)
	case "env":
		bindings := s.env.Bindings()
		if len(bindings) == 0 {
			return Response{Kind: ResponseInfo, Text: "no definitions"}
		}
		var b strings.Builder
		for i, bnd := range bindings {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%s = %s", bnd.Name, expr.String(interp.ToExpr(bnd.Value)))
		}
		return Response{Kind: ResponseInfo, Text: b.String()}
	case "history":
		return s.showHistory(arg)
	case "sessions":
		return s.showSessions()
	default:
		return Response{Kind: ResponseError, Text: fmt.Sprintf("unknown command :%s (try :help)", name)}
	}
}

func (s *Session) define(arg string) Response {
	name, src, ok := strings.Cut(arg, "=")
	name = strings.TrimSpace(name)
	if !ok || !isIdentifier(name) {
		return Response{Kind: ResponseError, Text: "usage: :def <name> = <expr>"}
	}

	e, err := s.config.Runner.Parse(src)
	if err != nil {
		return Response{Kind: ResponseError, Source: src, Text: FormatError(err, src)}
	}
	v, err := s.config.Runner.Eval(s.ctx, e, s.env)
	if err != nil {
		return Response{Kind: ResponseError, Source: src, Text: FormatError(err, src)}
	}
	s.env = interp.Extend(name, v, s.env)
	s.logger.Debug("defined", "name", name)
	return Response{Kind: ResponseInfo, Source: src, Text: fmt.Sprintf("%s = %s", name, v)}
}

func (s *Session) showHistory(arg string) Response {
	n := s.config.HistoryLimit
	if arg != "" {
		parsed, err := strconv.Atoi(arg)
		if err != nil || parsed <= 0 {
			return Response{Kind: ResponseError, Text: "usage: :history [n]"}
		}
		n = parsed
	}

	var lines []string
	if s.config.History != nil {
		entries, err := s.config.History.List(s.sessionID, n)
		if err != nil {
			return Response{Kind: ResponseError, Text: err.Error()}
		}
		for _, e := range entries {
			result := e.Output
			if e.Error != "" {
				result = "error: " + e.Error
			}
			lines = append(lines, fmt.Sprintf("[%s] %s => %s", e.Mode, oneLine(e.Source), oneLine(result)))
		}
	} else {
		h := s.history
		if len(h) > n {
			h = h[len(h)-n:]
		}
		lines = append(lines, h...)
	}

	if len(lines) == 0 {
		return Response{Kind: ResponseInfo, Text: "no history"}
	}
	return Response{Kind: ResponseInfo, Text: strings.Join(lines, "\n")}
}

func (s *Session) showSessions() Response {
	if s.config.History == nil {
		return Response{Kind: ResponseInfo, Text: "history is not persisted"}
	}
	ids, err := s.config.History.Sessions()
	if err != nil {
		return Response{Kind: ResponseError, Text: err.Error()}
	}
	if len(ids) == 0 {
		return Response{Kind: ResponseInfo, Text: "no stored sessions"}
	}
	for i, id := range ids {
		if id == s.sessionID {
			ids[i] += " (current)"
		}
	}
	return Response{Kind: ResponseInfo, Text: strings.Join(ids, "\n")}
}

var (
	commandNames = []string{":def", ":env", ":exit", ":help", ":history", ":mode", ":quit", ":sessions"}
	keywords     = []string{"_else", "_false", "_fun", "_if", "_in", "_let", "_then", "_true"}
)

// Complete returns the lines the line editor may complete line to. Only the
// trailing word is completed: commands at the start of a line, keywords
// after an underscore and otherwise the names bound with :def.
func (s *Session) Complete(line string) []string {
	start := len(line)
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(line[:start])
		if r != '_' && r != ':' && !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') {
			break
		}
		start -= size
	}
	head, word := line[:start], line[start:]
	if word == "" {
		return nil
	}

	var candidates []string
	switch {
	case word[0] == ':':
		if strings.TrimSpace(head) != "" {
			return nil
		}
		candidates = commandNames
	case word[0] == '_':
		candidates = keywords
	default:
		candidates = s.env.Names()
		slices.Sort(candidates)
	}

	var out []string
	for _, c := range candidates {
		if strings.HasPrefix(c, word) && c != word {
			out = append(out, head+c)
		}
	}
	return out
}

// Close trims the persistent history of this session to HistoryLimit.
func (s *Session) Close() {
	if s.config.History == nil {
		return
	}
	if _, err := s.config.History.Prune(s.sessionID, s.config.HistoryLimit); err != nil {
		s.logger.Warn("could not prune history", "error", err)
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z') && !(c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}
