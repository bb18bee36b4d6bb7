package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-coach/internal/config"
	"github.com/zhouzirui/z-coach/internal/logging"
	"github.com/zhouzirui/z-coach/internal/widget/capture"
	"github.com/zhouzirui/z-coach/internal/widget/playback"
	"github.com/zhouzirui/z-coach/internal/widget/protocol"
	"github.com/zhouzirui/z-coach/internal/widget/shell"
)

const version = "0.1.0"

func newRootCmd(cfg *config.Config, envErr error) *cobra.Command {
	coachCfg := cfg.Coach
	logLevel := cfg.Log.Level

	cmd := &cobra.Command{
		Use:     "coach",
		Short:   "Talk to the Coach assistant from a terminal",
		Version: version,
		Long: `Runs one Coach widget session against a coach backend.

Type a message and press Enter to send it. Lines starting with a slash
drive the widget like its buttons and keys would.`,
		Example: `  # Talk to a local backend
  $ coach --endpoint http://localhost:8080/api/coach

  # Text only, no audio playback
  $ coach --mute

  # Commands inside the session
  /open /close /voice /esc /tab /shift-tab /status /quit`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logCfg := cfg.Log
			logCfg.Level = logLevel
			logger := logging.NewWithWriter(logCfg, cmd.ErrOrStderr())
			if envErr != nil {
				logger.WithError(envErr).Debug("no .env file loaded")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, coachCfg, cfg.Speech.Language, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	flags := cmd.Flags()
	flags.StringVar(&coachCfg.Endpoint, "endpoint", coachCfg.Endpoint, "coach backend endpoint (COACH_ENDPOINT)")
	flags.StringVar(&coachCfg.UserID, "user", coachCfg.UserID, "user id sent with every turn (COACH_USER_ID)")
	flags.StringVar(&coachCfg.Greeting, "greeting", coachCfg.Greeting, "first assistant message (COACH_GREETING)")
	flags.DurationVar(&coachCfg.Timeout, "timeout", coachCfg.Timeout, "request timeout, 0 for none (COACH_TIMEOUT)")
	flags.StringVar(&coachCfg.RecognizerURL, "recognizer", coachCfg.RecognizerURL, "speech recognizer websocket URL (COACH_RECOGNIZER_URL)")
	flags.StringVar(&coachCfg.FFPlayPath, "ffplay", coachCfg.FFPlayPath, "ffplay binary used for audio (COACH_FFPLAY_PATH)")
	flags.BoolVar(&coachCfg.Mute, "mute", coachCfg.Mute, "do not play reply audio (COACH_MUTE)")
	flags.StringVar(&logLevel, "log-level", logLevel, "log level (LOG_LEVEL)")

	return cmd
}

func run(ctx context.Context, cfg config.CoachConfig, language string, in io.Reader, out io.Writer, logger logrus.FieldLogger) error {
	client, err := protocol.New(protocol.Config{
		Endpoint: cfg.Endpoint,
		UserID:   cfg.UserID,
		Timeout:  cfg.Timeout,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	var player playback.Player = playback.NewFFPlayPlayer(cfg.FFPlayPath)
	if cfg.Mute {
		player = playback.DiscardPlayer{}
	}

	capability := capture.Unavailable()
	if cfg.RecognizerURL != "" {
		capability = capture.Available(capture.NewWSRecognizer(cfg.RecognizerURL, language, logger))
	}

	term := newTerminal(out)
	widget, err := shell.New(shell.Options{
		Greeting:   cfg.Greeting,
		Client:     client,
		Player:     playback.NewPipeline(player, logger),
		Capability: capability,
		Focus:      term,
		Announcer:  term,
		FocusOrder: focusOrder,
		OnChange:   term.render,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	term.attach(widget)
	defer widget.Close()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	term.println("Coach is ready. Type /open to show the panel, /quit to leave.")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				widget.Wait()
				return nil
			}
			if quit := handleLine(ctx, widget, term, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

// handleLine runs one input line. It reports whether the session should end.
func handleLine(ctx context.Context, w *shell.Widget, term *terminal, line string) bool {
	switch line {
	case "":
		return false
	case "/quit", "/exit":
		return true
	case "/open":
		if w.State().Visibility == shell.Closed {
			w.Toggle()
		}
	case "/close":
		if w.State().Visibility == shell.Open {
			w.Toggle()
		}
	case "/esc":
		w.HandleKey(shell.KeyEscape)
	case "/tab":
		w.HandleKey(shell.KeyTab)
	case "/shift-tab":
		w.HandleKey(shell.KeyShiftTab)
	case "/voice":
		if !w.VoiceAvailable() {
			term.println("Voice input is not available.")
			return false
		}
		if err := w.ToggleVoice(ctx); err != nil {
			term.println("Voice input failed: " + err.Error())
		}
	case "/status":
		term.printStatus(w)
	default:
		if strings.HasPrefix(line, "/") {
			term.println("Unknown command " + line)
			return false
		}
		if w.State().Visibility == shell.Closed {
			w.Toggle()
		}
		// Blocks until the reply text is in; audio keeps playing afterwards.
		if err := w.Submit(ctx, line); errors.Is(err, shell.ErrBusy) {
			term.println("Coach is still busy, try again in a moment.")
		} else if err != nil {
			term.println(fmt.Sprintf("Message not sent: %v", err))
		}
	}
	return false
}
