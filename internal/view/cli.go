package view

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/dustin/go-humanize"
	"github.com/loqalabs/loqa-tts/internal/audio"
	"github.com/loqalabs/loqa-tts/internal/tts"
)

type lineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
	Close() error
}

type CLIOptions struct {
	Store       *audio.Store
	Playback    PlaybackPolicy
	HistoryFile string
	Stdin       io.ReadCloser
	Stdout      io.Writer
	Logger      *slog.Logger
}

// CLI is the interactive terminal adapter.
type CLI struct {
	rl        lineReader
	completer *wordCompleter
	out       io.Writer
	store     *audio.Store
	playback  PlaybackPolicy
	voices    []string
	log       *slog.Logger
}

func NewCLI(opts CLIOptions) (*CLI, error) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	completer := &wordCompleter{}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     opts.HistoryFile,
		HistoryLimit:    100,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           opts.Stdin,
		Stdout:          opts.Stdout,
		Stderr:          opts.Stdout,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize readline: %w", err)
	}
	return newCLI(rl, completer, opts), nil
}

func newCLI(rl lineReader, completer *wordCompleter, opts CLIOptions) *CLI {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &CLI{
		rl:        rl,
		completer: completer,
		out:       opts.Stdout,
		store:     opts.Store,
		playback:  opts.Playback,
		log:       log.With(slog.String("component", "cli")),
	}
}

func (c *CLI) Close() error {
	return c.rl.Close()
}

func (c *CLI) prompt(prompt string, words []string) (string, error) {
	c.completer.SetWords(words)
	c.rl.SetPrompt(prompt)
	line, err := c.rl.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return "", ErrInterrupted
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *CLI) SetVoices(voices []string) {
	c.voices = append([]string(nil), voices...)
}

// GetParams asks for voice, speed and text. Empty answers keep the current
// value; speed is asked again until it parses and falls within range.
func (c *CLI) GetParams(voice string, speed float64, text string) (string, float64, string, error) {
	answer, err := c.prompt(fmt.Sprintf("Enter voice (%s): ", voice), c.voices)
	if err != nil {
		return "", 0, "", err
	}
	if answer != "" {
		voice = answer
	}

	speed, err = c.promptSpeed(speed)
	if err != nil {
		return "", 0, "", err
	}

	answer, err = c.prompt(fmt.Sprintf("Enter text (%s): ", text), nil)
	if err != nil {
		return "", 0, "", err
	}
	if answer != "" {
		text = answer
	}
	return voice, speed, text, nil
}

func (c *CLI) promptSpeed(current float64) (float64, error) {
	label := strconv.FormatFloat(current, 'f', -1, 64)
	for {
		answer, err := c.prompt(fmt.Sprintf("Enter speed (%s): ", label), nil)
		if err != nil {
			return 0, err
		}
		if answer == "" {
			answer = label
		}
		value, err := strconv.ParseFloat(answer, 64)
		if err != nil {
			fmt.Fprintln(c.out, "Invalid input. Please enter a numeric value.")
			continue
		}
		if !(value >= tts.MinSpeed && value <= tts.MaxSpeed) {
			fmt.Fprintf(c.out, "Please enter a value between %.1f and %.1f.\n", tts.MinSpeed, tts.MaxSpeed)
			continue
		}
		return value, nil
	}
}

func (c *CLI) ShowGeneratedSegment(graphemes, phonemes string) {
	fmt.Fprintf(c.out, "\nGenerated segment: %s\nPhonemes: %s\n", graphemes, phonemes)
}

// PromptPlayAudio asks until it gets a yes or no. An interrupted prompt
// counts as no.
func (c *CLI) PromptPlayAudio() bool {
	for {
		answer, err := c.prompt("Play audio? (y/n) ", []string{"y", "n"})
		if err != nil {
			return false
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
	}
}

func (c *CLI) GetAudio(path string) (audio.Clip, error) {
	return c.store.Load(path)
}

func (c *CLI) PlayAudio(ctx context.Context, clip audio.Clip) error {
	if err := c.store.Play(ctx, clip); err != nil {
		if c.playback == PlaybackPropagate {
			return err
		}
		c.log.Debug("playback failed", slog.String("error", err.Error()))
		fmt.Fprintf(c.out, "Error playing audio: %v\n", err)
		return nil
	}
	fmt.Fprintln(c.out)
	return nil
}

func (c *CLI) ShowNoAudioGenerated() {
	fmt.Fprintln(c.out, "No audio was generated.")
}

func (c *CLI) ShowAvailableVoices(voices []string) {
	fmt.Fprintln(c.out, "Available voices:")
	for _, v := range voices {
		fmt.Fprintf(c.out, "- %s\n", v)
	}
}

func (c *CLI) ShowExit() {
	fmt.Fprintln(c.out, "Goodbye!")
}

func (c *CLI) GetMenuSelection(commands []string) (string, error) {
	answer, err := c.prompt("Select an option: ", commands)
	if err != nil {
		return "", err
	}
	return strings.ToLower(answer), nil
}

func (c *CLI) ShowInvalidChoice() {
	fmt.Fprintln(c.out, "Invalid choice. Please select a valid option.")
}

func (c *CLI) SaveAudioWithRetry(ctx context.Context, samples []float32, sampleRate int, path string) bool {
	notify := func(attempt, maxAttempts int, err error, delay time.Duration) {
		fmt.Fprintf(c.out, "Failed to save audio (attempt %d/%d): %v\n", attempt, maxAttempts, err)
		fmt.Fprintln(c.out, "The file might be in use by another program (e.g., media player).")
		fmt.Fprintf(c.out, "Retrying in %s...\n", delay)
	}
	if !c.store.SaveWithRetry(ctx, samples, sampleRate, path, notify) {
		fmt.Fprintf(c.out, "Error saving audio: giving up after %d attempts.\n", c.store.MaxAttempts())
		return false
	}
	if info, err := os.Stat(path); err == nil {
		fmt.Fprintf(c.out, "Audio path: %s (%s)\n\n", path, humanize.Bytes(uint64(info.Size())))
	} else {
		fmt.Fprintf(c.out, "Audio path: %s\n\n", path)
	}
	return true
}
