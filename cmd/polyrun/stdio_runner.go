package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ChamsBouzaiene/polyrun/internal/engine"
	engineprotocol "github.com/ChamsBouzaiene/polyrun/internal/engine/protocol"
	"github.com/ChamsBouzaiene/polyrun/internal/workspace"
)

const fixRequestTimeout = 2 * time.Minute

type stdioRunner struct {
	scanner *bufio.Scanner
	writer  *bufio.Writer
	events  chan engineprotocol.Event
	env     *runtimeEnv

	// serializes save_config so env updates and the fixer rebuild stay paired
	configMu sync.Mutex
	handlers sync.WaitGroup
}

func newStdIORunner(in io.Reader, out io.Writer, env *runtimeEnv) *stdioRunner {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	return &stdioRunner{
		scanner: scanner,
		writer:  bufio.NewWriter(out),
		events:  make(chan engineprotocol.Event, 256),
		env:     env,
	}
}

// Run reads commands until stdin closes or ctx is cancelled. Commands are
// handled concurrently; their events are written in completion order.
func (r *stdioRunner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go r.flushEvents(errCh)

	fixer, _ := r.env.Fixer()
	r.emitEvent(engineprotocol.NewReadyEvent(r.languages(), fixer.Available()))

	for ctx.Err() == nil && r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		// A slow run must not block the next command.
		r.handlers.Add(1)
		go func(l string) {
			defer r.handlers.Done()
			if err := r.handleLine(ctx, l); err != nil {
				log.Printf("stdio command error: %v", err)
			}
		}(line)
	}

	if err := r.scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		r.emitEvent(engineprotocol.NewErrorEvent("", fmt.Sprintf("stdin error: %v", err), engineprotocol.ErrCodeProtocol, ""))
	}

	r.handlers.Wait()
	close(r.events)
	return <-errCh
}

func (r *stdioRunner) flushEvents(errCh chan<- error) {
	var werr error
	for ev := range r.events {
		if werr != nil {
			continue
		}
		werr = r.writeEvent(ev)
	}
	errCh <- werr
}

func (r *stdioRunner) writeEvent(ev engineprotocol.Event) error {
	payload, err := engineprotocol.MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := r.writer.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	return r.writer.Flush()
}

// emitEvent blocks while the buffer is full. flushEvents drains until Run
// closes the channel, which happens only after every handler has returned.
func (r *stdioRunner) emitEvent(ev engineprotocol.Event) {
	r.events <- ev
}

func (r *stdioRunner) languages() []engineprotocol.LanguageInfo {
	langs := r.env.Dispatcher.Languages()
	infos := make([]engineprotocol.LanguageInfo, 0, len(langs))
	for _, l := range langs {
		infos = append(infos, engineprotocol.LanguageInfo{ID: string(l), Name: l.DisplayName()})
	}
	return infos
}

func (r *stdioRunner) handleLine(ctx context.Context, line string) error {
	cmd, err := engineprotocol.DecodeCommand([]byte(line))
	if err != nil {
		r.emitEvent(engineprotocol.NewErrorEvent("", err.Error(), engineprotocol.ErrCodeInvalidCommand, truncate(line, 256)))
		return err
	}

	switch c := cmd.(type) {
	case engineprotocol.RunCommand:
		r.handleRun(ctx, c)
		return nil
	case engineprotocol.FixCommand:
		return r.handleFix(ctx, c)
	case engineprotocol.LanguagesCommand:
		r.emitEvent(engineprotocol.NewLanguagesEvent(c.RequestID, r.languages()))
		return nil
	case engineprotocol.GetConfigCommand:
		return r.handleGetConfig(c)
	case engineprotocol.SaveConfigCommand:
		return r.handleSaveConfig(ctx, c)
	default:
		r.emitEvent(engineprotocol.NewErrorEvent(cmd.GetRequestID(), "unsupported command", engineprotocol.ErrCodeInvalidCommand, ""))
		return fmt.Errorf("unsupported command type %T", cmd)
	}
}

func (r *stdioRunner) handleRun(ctx context.Context, c engineprotocol.RunCommand) {
	lang := workspace.ParseLanguage(c.Language)
	if c.Language == "" {
		lang = workspace.LanguageFromContent(c.Code)
	}

	timeout := r.env.Timeout
	if c.TimeoutMS > 0 {
		timeout = time.Duration(c.TimeoutMS) * time.Millisecond
	}

	res := r.env.Dispatcher.Execute(ctx, engine.ExecutionRequest{
		Code:     c.Code,
		Language: lang,
		Timeout:  timeout,
	})
	r.emitEvent(engineprotocol.NewResultEvent(
		c.RequestID,
		res.RunID,
		string(res.Language),
		string(res.Outcome),
		res.ExitCode,
		res.Duration.Milliseconds(),
		engine.FormatReport(res),
	))
}

func (r *stdioRunner) handleFix(ctx context.Context, c engineprotocol.FixCommand) error {
	fixer, ferr := r.env.Fixer()
	if !fixer.Available() {
		msg := engine.ErrFixUnavailable.Error()
		if ferr != nil {
			msg = fmt.Sprintf("%s: %v", msg, ferr)
		}
		r.emitEvent(engineprotocol.NewErrorEvent(c.RequestID, msg, engineprotocol.ErrCodeFixUnavailable, ""))
		return nil
	}

	lang := workspace.ParseLanguage(c.Language)
	if c.Language == "" {
		lang = workspace.LanguageFromContent(c.Code)
	}

	ctx, cancel := context.WithTimeout(ctx, fixRequestTimeout)
	defer cancel()

	fixed, changed, err := fixer.Fix(ctx, c.Code, lang, c.Report)
	if err != nil {
		r.emitEvent(engineprotocol.NewErrorEvent(c.RequestID, err.Error(), engineprotocol.ErrCodeFixFailed, ""))
		return err
	}
	r.emitEvent(engineprotocol.NewFixEvent(c.RequestID, fixed, changed))
	return nil
}

func (r *stdioRunner) handleGetConfig(c engineprotocol.GetConfigCommand) error {
	mgr := r.env.Config
	if mgr == nil {
		r.emitEvent(engineprotocol.NewErrorEvent(c.RequestID, "config manager not initialized", engineprotocol.ErrCodeConfig, ""))
		return errors.New("config manager not initialized")
	}

	cfg, err := mgr.Load()
	if err != nil {
		r.emitEvent(engineprotocol.NewErrorEvent(c.RequestID, err.Error(), engineprotocol.ErrCodeConfig, ""))
		return err
	}
	r.emitEvent(engineprotocol.NewConfigLoadedEvent(c.RequestID, configToMap(cfg.Redacted())))
	return nil
}

func (r *stdioRunner) handleSaveConfig(ctx context.Context, c engineprotocol.SaveConfigCommand) error {
	mgr := r.env.Config
	if mgr == nil {
		r.emitEvent(engineprotocol.NewErrorEvent(c.RequestID, "config manager not initialized", engineprotocol.ErrCodeConfig, ""))
		return errors.New("config manager not initialized")
	}

	update, err := configFromMap(c.Config)
	if err != nil {
		r.emitEvent(engineprotocol.NewErrorEvent(c.RequestID, err.Error(), engineprotocol.ErrCodeConfig, ""))
		return err
	}

	r.configMu.Lock()
	defer r.configMu.Unlock()

	cfg, err := mgr.Load()
	if err != nil {
		r.emitEvent(engineprotocol.NewErrorEvent(c.RequestID, err.Error(), engineprotocol.ErrCodeConfig, ""))
		return err
	}
	cfg.Merge(update)
	if err := mgr.Save(cfg); err != nil {
		r.emitEvent(engineprotocol.NewErrorEvent(c.RequestID, err.Error(), engineprotocol.ErrCodeConfig, ""))
		return err
	}

	// Sandbox and history settings take effect on the next start; the
	// provider is swapped now.
	applyConfigToEnv(cfg, true)
	r.env.reloadFixer(ctx)

	fixer, ferr := r.env.Fixer()
	if ferr != nil {
		log.Printf("WARNING: AI fix unavailable after config save: %v", ferr)
	}
	r.emitEvent(engineprotocol.NewConfigSavedEvent(c.RequestID, fixer.Available()))
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
