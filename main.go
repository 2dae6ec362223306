package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"golang.org/x/term"

	"medivox/audio"
	"medivox/config"
	"medivox/engine"
	"medivox/log"
	"medivox/pipeline"
	"medivox/seal"
)

var version = "dev"

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "medivox.yaml"
	}
	return filepath.Join(dir, "medivox", "config.yaml")
}

func pickEngine(name string) (engine.Engine, error) {
	switch name {
	case "deepgram":
		key := os.Getenv("DEEPGRAM_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("deepgram engine requires DEEPGRAM_API_KEY")
		}
		return engine.NewDeepgram(key), nil
	case "whisper":
		key := os.Getenv("GROQ_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("whisper engine requires GROQ_API_KEY")
		}
		return engine.NewWhisper(key), nil
	case "":
		return engine.New()
	default:
		return nil, fmt.Errorf("unknown engine %q", name)
	}
}

// defaultProviders fills the pipeline chain from well-known key
// variables when the config file does not define one.
func defaultProviders() []config.Provider {
	return []config.Provider{
		{Type: "openai", Model: "gpt-4o-mini", APIKeyEnv: "OPENAI_API_KEY"},
		{Type: "claude", Model: "claude-sonnet-4-20250514", APIKeyEnv: "ANTHROPIC_API_KEY"},
	}
}

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to the YAML settings file")
	deviceName := flag.String("device", "", "capture device name (default: system default)")
	engineName := flag.String("engine", "", "transcription engine: deepgram or whisper (default: by available key)")
	copyFlag := flag.Bool("copy", false, "copy the translated text to the clipboard")
	sourceLang := flag.String("source", "", "spoken language code (overrides config)")
	targetLang := flag.String("target", "", "translation target language code (overrides config)")
	inputPath := flag.String("input", "", "replay a 16-bit mono WAV file instead of the microphone")
	logPath := flag.String("logpath", "", "directory for diagnostics and transcript logs")
	useTUI := flag.Bool("tui", term.IsTerminal(int(os.Stdout.Fd())), "render the interactive terminal UI")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("medivox", version)
		return
	}

	logDir, err := log.ResolveDir(*logPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "resolving log dir:", err)
		os.Exit(1)
	}
	log.SetDir(logDir)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintln(os.Stderr, "creating log dir:", err)
		os.Exit(1)
	}
	if err := log.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "opening logs:", err)
		os.Exit(1)
	}
	defer log.Close()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Warnf("loading config: %v", err)
	}
	if *copyFlag {
		cfg.CopyResult = true
	}
	if *sourceLang != "" {
		cfg.SourceLang = *sourceLang
	}
	if *targetLang != "" {
		cfg.TargetLang = *targetLang
	}
	store := config.NewStore(cfg)

	var audioCtx audio.Context
	if *inputPath != "" {
		pcm, err := audio.LoadWAV(*inputPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "loading input:", err)
			os.Exit(1)
		}
		audioCtx = audio.NewFakeContext(pcm, true)
		log.Info("replaying " + *inputPath)
	} else {
		audioCtx, err = audio.NewContext()
		if err != nil {
			fmt.Fprintln(os.Stderr, "initializing audio:", err)
			os.Exit(1)
		}
	}
	defer audioCtx.Close()

	eng, err := pickEngine(*engineName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log.Info("engine: " + eng.Name())

	providers := cfg.Providers
	if len(providers) == 0 {
		providers = defaultProviders()
	}
	pipe := pipeline.NewFromConfig(providers)

	var sealer seal.Sealer
	if cfg.EncryptionKey != "" {
		aes, err := seal.New(cfg.EncryptionKey)
		if err != nil {
			log.Warnf("encryption disabled: %v", err)
		} else {
			sealer = aes
			defer aes.Close()
		}
	}

	var sink eventSink = logSink{}
	if *useTUI {
		sink = tuiSink{}
	}

	ctl := newSessionController(audioCtx, eng, store, pipe, sealer, sink, cfg, *deviceName)
	if cfg.CopyResult {
		ctl.copyResult = clipboard.WriteAll
	}

	if *useTUI {
		runTUI(ctl, store)
		return
	}
	runHeadless(ctl)
}

func runTUI(ctl *sessionController, store *config.Store) {
	p := NewTUIProgram(ctl, store)
	tuiMu.Lock()
	tuiProgram = p
	tuiMu.Unlock()

	if _, err := p.Run(); err != nil {
		log.Errorf("tui: %v", err)
	}

	tuiMu.Lock()
	tuiProgram = nil
	tuiMu.Unlock()
	ctl.Stop()
}

// runHeadless starts one session immediately and exits once it ends,
// by silence timeout, engine end, or a signal.
func runHeadless(ctl *sessionController) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	if err := ctl.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "starting session:", err)
		os.Exit(1)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-sigc:
			ctl.Stop()
			return
		case <-ticker.C:
			if ctl.State() == stateIdle {
				return
			}
		}
	}
}
