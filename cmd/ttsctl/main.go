package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/a0799406417-svg/gemini-tts-app/internal/client"
	"github.com/a0799406417-svg/gemini-tts-app/internal/config"
	"github.com/a0799406417-svg/gemini-tts-app/internal/playback"
	"github.com/a0799406417-svg/gemini-tts-app/internal/protocol"
	"github.com/a0799406417-svg/gemini-tts-app/internal/speech"
)

const defaultConfigPath = "ttsctl.yaml"

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'say', 'voices', 'speak' or 'version'")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "say":
		err = runSay(ctx, os.Args[2:])
	case "voices":
		err = runVoices(ctx, os.Args[2:])
	case "speak":
		err = runSpeak(ctx, os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type commonFlags struct {
	configPath string
	verbose    bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", defaultConfigPath, "Path to configuration file")
	fs.BoolVar(&c.verbose, "v", false, "Log debug output to stderr")
}

func (c *commonFlags) load() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.configPath, c.configPath == defaultConfigPath)
	if err != nil {
		return cfg, nil, err
	}
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return cfg, logger, nil
}

func runSay(ctx context.Context, args []string) error {
	var (
		common   commonFlags
		text     string
		tone     string
		mode     string
		language string
		voice    string
	)
	fs := flag.NewFlagSet("say", flag.ExitOnError)
	common.register(fs)
	fs.StringVar(&text, "text", client.DefaultText, "Text to rewrite and speak")
	fs.StringVar(&tone, "tone", client.DefaultTone, "Reading tone")
	fs.StringVar(&mode, "playback", "", "Override client.playback (cloud or local)")
	fs.StringVar(&language, "voice-lang", "", "Synthesis voice language code")
	fs.StringVar(&voice, "voice", "", "Synthesis voice name")
	_ = fs.Parse(args)

	cfg, logger, err := common.load()
	if err != nil {
		return err
	}
	if mode != "" {
		cfg.Client.Playback = mode
	}

	strategy, cleanup, err := buildStrategy(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	var opts []client.Option
	if voice != "" || language != "" {
		opts = append(opts, client.WithVoice(protocol.VoiceSelection{LanguageCode: language, Name: voice}))
	}
	c := client.New(cfg.Client, strategy, logger, opts...)
	defer c.Close()

	submit := func() {
		fmt.Fprintln(os.Stderr, "...")
		res, err := c.Submit(ctx, text, tone)
		if err != nil {
			fmt.Fprintln(os.Stderr, c.View().Error)
			return
		}
		fmt.Println(res.RewrittenText)
	}
	submit()
	fmt.Fprintln(os.Stderr, "[p] play/pause  [s] stop  [r] resubmit  [q] quit")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			var err error
			switch strings.TrimSpace(line) {
			case "p":
				err = c.Toggle()
			case "s":
				err = c.Stop()
			case "r":
				submit()
			case "q":
				return nil
			case "":
			default:
				fmt.Fprintln(os.Stderr, "unknown key")
			}
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
			fmt.Fprintln(os.Stderr, c.Status())
		}
	}
}

func runVoices(ctx context.Context, args []string) error {
	var (
		common   commonFlags
		language string
		local    bool
	)
	fs := flag.NewFlagSet("voices", flag.ExitOnError)
	common.register(fs)
	fs.StringVar(&language, "lang", "", "Filter by language code")
	fs.BoolVar(&local, "local", false, "List local speech engine voices instead")
	_ = fs.Parse(args)

	cfg, logger, err := common.load()
	if err != nil {
		return err
	}

	if local {
		engine, err := speech.New(cfg.Speech)
		if err != nil {
			return err
		}
		voices, err := engine.Voices(ctx)
		if err != nil {
			return err
		}
		for _, v := range voices {
			if language != "" && !strings.HasPrefix(v.Language, language) {
				continue
			}
			fmt.Printf("%s\t%s\t%s\n", v.ID, v.Language, v.Name)
		}
		return nil
	}

	c := client.New(cfg.Client, nil, logger)
	voices, err := c.Voices(ctx, language)
	if err != nil {
		return err
	}
	for _, v := range voices {
		fmt.Printf("%s\t%s\t%s\n", v.Name, strings.Join(v.LanguageCodes, ","), v.Gender)
	}
	return nil
}

func runSpeak(ctx context.Context, args []string) error {
	var (
		common commonFlags
		voice  string
	)
	fs := flag.NewFlagSet("speak", flag.ExitOnError)
	common.register(fs)
	fs.StringVar(&voice, "voice", "", "Local voice identifier")
	_ = fs.Parse(args)

	cfg, logger, err := common.load()
	if err != nil {
		return err
	}
	if voice == "" {
		voice = cfg.Client.LocalVoice
	}
	text := strings.Join(fs.Args(), " ")
	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("nothing to speak")
	}

	engine, err := speech.New(cfg.Speech)
	if err != nil {
		return err
	}
	svc := speech.NewService(ctx, engine, logger)
	defer svc.Close()

	if err := svc.Speak(ctx, text, voice); err != nil {
		return err
	}
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for svc.Status() != playback.StatusIdle {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

// buildStrategy wires the playback strategy named by cfg.Client.Playback.
// The returned cleanup releases engine resources.
func buildStrategy(ctx context.Context, cfg config.Config, logger *slog.Logger) (client.Strategy, func(), error) {
	switch cfg.Client.Playback {
	case "local":
		engine, err := speech.New(cfg.Speech)
		if err != nil {
			return nil, nil, err
		}
		svc := speech.NewService(ctx, engine, logger)
		if err := svc.Refresh(ctx); err != nil {
			logger.Warn("local voices unavailable", slog.String("error", err.Error()))
		}
		if cfg.Speech.VoicesRefreshMS > 0 {
			svc.Watch(speech.PollChanges(ctx, engine, time.Duration(cfg.Speech.VoicesRefreshMS)*time.Millisecond))
		}
		return client.NewLocalStrategy(svc, cfg.Client.LocalVoice), func() { _ = svc.Close() }, nil
	default:
		factory, err := playback.NewExecFactory(cfg.Client.PlayerCommand)
		if err != nil {
			return nil, nil, err
		}
		player := playback.NewPlayer(factory, logger, func(tr playback.Transition) {
			logger.Debug("playback transition",
				slog.String("from", tr.From.String()),
				slog.String("to", tr.To.String()),
				slog.String("event", tr.Event.String()))
		})
		return client.NewCloudStrategy(player), player.Release, nil
	}
}
