package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/audiolibrelab/rmxr/internal/deck"
	"github.com/audiolibrelab/rmxr/internal/service"
	"github.com/chzyer/readline"
)

// ErrUnknownCommand is returned for input that names no command.
var ErrUnknownCommand = errors.New("unknown command")

// Console is an interactive line interface to the studio.
type Console struct {
	svc service.Service
	out io.Writer
}

type command struct {
	usage string
	help  string
	run   func(c *Console, ctx context.Context, args []string) error
}

var commands map[string]command

// order fixes the help listing
var order = []string{
	"load", "play", "pause", "seek", "stop",
	"eq", "filter", "rate", "gain", "bpm",
	"sync", "xfade", "master", "reset",
	"rec", "publish", "status", "help", "quit",
}

func init() {
	commands = map[string]command{
		"load":    {"load <deck> <path|url>", "load a track onto a deck", cmdLoad},
		"play":    {"play <deck>", "start or resume a deck", deckOp(service.Service.Play)},
		"pause":   {"pause <deck>", "pause a deck", deckOp(service.Service.Pause)},
		"seek":    {"seek <deck> <seconds>", "jump to a position", cmdSeek},
		"stop":    {"stop <deck> [reset]", "stop and rewind, optionally resetting EQ, filter and gain", cmdStop},
		"eq":      {"eq <deck> <low> <mid> <high>", "set shelf and peak gains in dB", cmdEQ},
		"filter":  {"filter <deck> <hz>", "set the low-pass cutoff", deckValue(service.Service.SetFilter)},
		"rate":    {"rate <deck> <deflection>", "move the pitch fader, e.g. rate a 0.04 or rate a +4%", cmdRate},
		"gain":    {"gain <deck> <value>", "set the deck gain", deckValue(service.Service.SetGain)},
		"bpm":     {"bpm <deck> <value>", "set the deck tempo", deckValue(service.Service.SetBPM)},
		"sync":    {"sync", "match deck B's tempo to deck A", cmdSync},
		"xfade":   {"xfade <0..1>", "move the crossfader", mixerValue(service.Service.SetCrossfade)},
		"master":  {"master <0..1>", "set the master gain", mixerValue(service.Service.SetMasterGain)},
		"reset":   {"reset", "stop both decks and recenter the mixer", cmdReset},
		"rec":     {"rec start|stop|discard", "control the recorder", cmdRec},
		"publish": {"publish [caption]", "publish the last recording", cmdPublish},
		"status":  {"status", "show decks, mixer and recorder", cmdStatus},
		"help":    {"help", "list commands", cmdHelp},
		"quit":    {"quit", "leave the console", nil},
	}
}

func New(svc service.Service, out io.Writer) *Console {
	return &Console{svc: svc, out: out}
}

// Execute runs one input line. quit is true when the user asked to leave.
func (c *Console) Execute(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	name := strings.ToLower(fields[0])
	if name == "exit" {
		name = "quit"
	}
	cmd, ok := commands[name]
	if !ok {
		return false, fmt.Errorf("%w: %s (try 'help')", ErrUnknownCommand, fields[0])
	}
	if cmd.run == nil {
		return true, nil
	}

	slog.Debug("Console command", "command", name, "args", fields[1:])
	return false, cmd.run(c, ctx, fields[1:])
}

// Run reads commands from the terminal until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "rmxr> ",
		AutoComplete:    completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		Stdout:          c.out,
	})
	if err != nil {
		return fmt.Errorf("failed to start console: %w", err)
	}
	defer rl.Close()

	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	fmt.Fprintln(c.out, "rmxr console, type 'help' for commands")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		quit, err := c.Execute(ctx, line)
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func completer() *readline.PrefixCompleter {
	decks := func(children ...readline.PrefixCompleterInterface) []readline.PrefixCompleterInterface {
		return []readline.PrefixCompleterInterface{
			readline.PcItem("a", children...),
			readline.PcItem("b", children...),
		}
	}

	var items []readline.PrefixCompleterInterface
	for _, name := range order {
		switch name {
		case "play", "pause", "seek", "eq", "filter", "rate", "gain", "bpm", "load":
			items = append(items, readline.PcItem(name, decks()...))
		case "stop":
			items = append(items, readline.PcItem(name, decks(readline.PcItem("reset"))...))
		case "rec":
			items = append(items, readline.PcItem(name,
				readline.PcItem("start"),
				readline.PcItem("stop"),
				readline.PcItem("discard"),
			))
		default:
			items = append(items, readline.PcItem(name))
		}
	}
	return readline.NewPrefixCompleter(items...)
}

func usage(name string) error {
	return fmt.Errorf("usage: %s", commands[name].usage)
}

func parseDeck(s string) (deck.ID, error) {
	id, ok := deck.ParseID(s)
	if !ok {
		return "", fmt.Errorf("%w: %q", service.ErrUnknownDeck, s)
	}
	return id, nil
}

func parseFloats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number: %s", a)
		}
		out[i] = v
	}
	return out, nil
}

func deckOp(fn func(service.Service, deck.ID) error) func(*Console, context.Context, []string) error {
	return func(c *Console, ctx context.Context, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("usage: <command> <deck>")
		}
		id, err := parseDeck(args[0])
		if err != nil {
			return err
		}
		return fn(c.svc, id)
	}
}

func deckValue(fn func(service.Service, deck.ID, float64) error) func(*Console, context.Context, []string) error {
	return func(c *Console, ctx context.Context, args []string) error {
		if len(args) != 2 {
			return fmt.Errorf("usage: <command> <deck> <value>")
		}
		id, err := parseDeck(args[0])
		if err != nil {
			return err
		}
		v, err := parseFloats(args[1:])
		if err != nil {
			return err
		}
		return fn(c.svc, id, v[0])
	}
}

func mixerValue(fn func(service.Service, float64)) func(*Console, context.Context, []string) error {
	return func(c *Console, ctx context.Context, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("usage: <command> <value>")
		}
		v, err := parseFloats(args)
		if err != nil {
			return err
		}
		fn(c.svc, v[0])
		return nil
	}
}

func cmdLoad(c *Console, ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usage("load")
	}
	id, err := parseDeck(args[0])
	if err != nil {
		return err
	}
	src := strings.Join(args[1:], " ")
	info, err := c.svc.LoadDeck(ctx, id, src)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "deck %s: %s (%.1fs, %d Hz source)\n", strings.ToUpper(string(id)), info.Source, info.Seconds, info.SourceRate)
	return nil
}

func cmdSeek(c *Console, ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("seek")
	}
	return deckValue(service.Service.Seek)(c, ctx, args)
}

func cmdStop(c *Console, ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 || (len(args) == 2 && args[1] != "reset") {
		return usage("stop")
	}
	id, err := parseDeck(args[0])
	if err != nil {
		return err
	}
	return c.svc.Stop(id, len(args) == 1)
}

func cmdEQ(c *Console, ctx context.Context, args []string) error {
	if len(args) != 4 {
		return usage("eq")
	}
	id, err := parseDeck(args[0])
	if err != nil {
		return err
	}
	v, err := parseFloats(args[1:])
	if err != nil {
		return err
	}
	return c.svc.SetEQ(id, v[0], v[1], v[2])
}

func cmdRate(c *Console, ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("rate")
	}
	id, err := parseDeck(args[0])
	if err != nil {
		return err
	}
	raw := args[1]
	scale := 1.0
	if strings.HasSuffix(raw, "%") {
		raw, scale = strings.TrimSuffix(raw, "%"), 0.01
	}
	v, err := parseFloats([]string{raw})
	if err != nil {
		return err
	}
	return c.svc.SetRate(id, v[0]*scale)
}

func cmdSync(c *Console, ctx context.Context, args []string) error {
	if !c.svc.SyncDecks() {
		return errors.New("both decks must be loaded and deck B playing to sync")
	}
	fmt.Fprintln(c.out, "deck B synced to deck A")
	return nil
}

func cmdReset(c *Console, ctx context.Context, args []string) error {
	c.svc.ResetMixer()
	return nil
}

func cmdRec(c *Console, ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("rec")
	}
	switch args[0] {
	case "start":
		if err := c.svc.StartRecording(); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "recording")
	case "stop":
		captured, err := c.svc.StopRecording()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "recorded %s, %d bytes %s\n", captured.Duration, captured.Size(), captured.MIMEType)
	case "discard":
		c.svc.DiscardRecording()
		fmt.Fprintln(c.out, "recording discarded")
	default:
		return usage("rec")
	}
	return nil
}

func cmdPublish(c *Console, ctx context.Context, args []string) error {
	post, err := c.svc.Publish(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "published %s: %s\n", post.ID, post.AudioURL)
	return nil
}

func cmdStatus(c *Console, ctx context.Context, args []string) error {
	st := c.svc.Status()
	for _, d := range st.Decks {
		source := d.Source
		if source == "" {
			source = "-"
		}
		fmt.Fprintf(c.out, "%s  %-8s %7.2fs / %7.2fs  rate %.3f  bpm %.1f  gain %.2f  eq %+.0f/%+.0f/%+.0f  lp %.0f Hz  %s\n",
			strings.ToUpper(string(d.ID)), d.State, d.Position, d.Duration,
			d.Params.Rate, d.BPM, d.Params.Gain,
			d.Params.LowDB, d.Params.MidDB, d.Params.HighDB, d.Params.CutoffHz, source)
	}
	fmt.Fprintf(c.out, "mixer  xfade %.2f  A %.2f  B %.2f  master %.2f\n",
		st.Mixer.Crossfade, st.Mixer.A, st.Mixer.B, st.Mixer.Master)
	fmt.Fprintf(c.out, "meter  rms %.3f  peak %.3f\n", st.Meter.RMS, st.Meter.Peak)

	rec := string(st.Recorder.State)
	if st.Recorder.Session != nil {
		rec += fmt.Sprintf(" %s", st.Recorder.Session.Duration)
	}
	if st.Recorder.Asset != nil {
		rec += fmt.Sprintf("  kept %s (%d bytes)", st.Recorder.Asset.Duration, st.Recorder.Asset.Size())
	}
	fmt.Fprintf(c.out, "rec    %s\n", rec)

	if st.LastError != "" {
		fmt.Fprintf(c.out, "last error: %s\n", st.LastError)
	}
	return nil
}

func cmdHelp(c *Console, ctx context.Context, args []string) error {
	for _, name := range order {
		cmd := commands[name]
		fmt.Fprintf(c.out, "  %-30s %s\n", cmd.usage, cmd.help)
	}
	return nil
}
