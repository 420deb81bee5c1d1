package repl

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/peterh/liner"
)

type LineConfig struct {
	// HistoryFile keeps liner's line history between runs. Empty disables it.
	HistoryFile string
	Out         io.Writer
}

// RunLine drives session from a plain terminal with line editing. It
// returns when the user quits or closes input.
func RunLine(session *Session, cfg LineConfig) error {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(session.Complete)

	if cfg.HistoryFile != "" {
		if f, err := os.Open(cfg.HistoryFile); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
		defer func() {
			if f, err := os.Create(cfg.HistoryFile); err == nil {
				_, _ = ln.WriteHistory(f)
				_ = f.Close()
			}
		}()
	}
	defer session.Close()

	fmt.Fprintln(cfg.Out, headerText)
	for {
		line, err := ln.Prompt(session.GetPrompt())
		if errors.Is(err, liner.ErrPromptAborted) {
			// Ctrl+C drops a half typed multi-line expression.
			session.Reset()
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(cfg.Out)
			return nil
		}
		if err != nil {
			return err
		}

		resp := session.Submit(line)
		if !resp.Continue && resp.Source != "" {
			ln.AppendHistory(oneLine(resp.Source))
		}
		writeResponse(cfg.Out, resp)
		if resp.Quit {
			return nil
		}
	}
}

func writeResponse(w io.Writer, resp Response) {
	if resp.Text == "" {
		return
	}
	switch resp.Kind {
	case ResponseError:
		fmt.Fprintln(w, color.RedString(resp.Text))
	case ResponseInfo:
		fmt.Fprintln(w, color.New(color.Faint).Sprint(resp.Text))
	default:
		fmt.Fprintln(w, color.CyanString(resp.Text))
	}
}
