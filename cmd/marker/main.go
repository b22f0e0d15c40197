// Package main provides the marker command: a persistent mark registry with
// a terminal viewer that hosts it.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/entrhq/marker/pkg/config"
	"github.com/entrhq/marker/pkg/editor"
	"github.com/entrhq/marker/pkg/logging"
	"github.com/entrhq/marker/pkg/marks"
	"github.com/entrhq/marker/pkg/session"
)

const version = "0.1.0"

// Flags holds the command line options. Set values win over the
// environment and the config file.
type Flags struct {
	ConfigPath     string
	DataPath       string
	LogLevel       string
	NoPersist      bool
	NativeEvents   bool
	LegacyCommands bool
	ShowVersion    bool
}

func main() {
	flags := parseFlags()

	if flags.ShowVersion {
		fmt.Printf("marker v%s\n", version)
		return
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	switch args[0] {
	case "list":
		err = runList(os.Stdout, cfg)
	case "view":
		err = runView(cfg, flags, args[1:])
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func parseFlags() *Flags {
	flags := &Flags{}

	flag.StringVar(&flags.ConfigPath, "config", "", "Path to the configuration file (default: ~/.config/marker/config.yaml)")
	flag.StringVar(&flags.DataPath, "data", "", "Path to the persisted marks file (or set MARKER_DATA_PATH)")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error (or set MARKER_LOG_LEVEL)")
	flag.BoolVar(&flags.NoPersist, "no-persist", false, "Do not load or save marks")
	flag.BoolVar(&flags.NativeEvents, "native-events", false, "Viewer host reports mark changes as events")
	flag.BoolVar(&flags.LegacyCommands, "legacy-commands", false, "Viewer host fires the legacy MarkSet hook")
	flag.BoolVar(&flags.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "marker - persistent editor marks\n\n")
		fmt.Fprintf(os.Stderr, "Usage: marker [options] list\n")
		fmt.Fprintf(os.Stderr, "       marker [options] view <file>...\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  %-18s Persisted marks file\n", config.EnvDataPath)
		fmt.Fprintf(os.Stderr, "  %-18s Log level\n", config.EnvLogLevel)
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  marker view main.go README.md        # interceptor strategy\n")
		fmt.Fprintf(os.Stderr, "  marker -native-events view main.go   # native event strategy\n")
		fmt.Fprintf(os.Stderr, "  marker list\n")
	}

	flag.Parse()
	return flags
}

// loadConfig applies file, environment and flags in increasing precedence.
func loadConfig(flags *Flags) (*config.Config, error) {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()

	if flags.DataPath != "" {
		cfg.DataPath = flags.DataPath
	}
	if flags.LogLevel != "" {
		cfg.LogLevel = flags.LogLevel
	}
	if flags.NoPersist {
		off := false
		cfg.Persist = &off
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runList prints the persisted marks, one per line, sorted. A damaged marks
// file lists nothing, the same way a session starts empty on one.
func runList(w io.Writer, cfg *config.Config) error {
	path, err := cfg.ResolvedDataPath()
	if err != nil {
		return err
	}
	file, err := marks.NewFile(path)
	if err != nil {
		return err
	}
	store := marks.NewStore()
	if err := file.Load(store); err != nil {
		var perr *marks.PersistenceError
		if !errors.As(err, &perr) {
			return err
		}
		log.Printf("Warning: %v", err)
		return nil
	}

	for _, e := range store.List() {
		scope := "scoped"
		if e.Mark.Global() {
			scope = "global"
		}
		fmt.Fprintf(w, "%s\t%s\tdocument=%d\tline=%d\tcolumn=%d\n", e.Mark, scope, e.Document, e.Line, e.Column)
	}
	return nil
}

func runView(cfg *config.Config, flags *Flags, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("view requires at least one file")
	}

	logger, err := logging.NewLogger("marker", logging.Options{Dir: cfg.LogDir, Level: cfg.Level()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	defer logger.Close()

	host := editor.NewMemory(editor.Capabilities{
		MarkEvents:     flags.NativeEvents,
		LegacyCommands: flags.LegacyCommands,
	})
	host.SetMarkKey(cfg.MarkKey)
	sess, err := session.Open(host, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open mark session: %w", err)
	}
	defer sess.Close()

	// Documents are numbered in argument order, so the same file list maps
	// persisted marks back onto the same files.
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		doc := host.OpenDocument(filepath.Base(path), string(data))
		if _, err := host.OpenView(doc); err != nil {
			return err
		}
	}
	if views := host.Views(); len(views) > 0 {
		if err := host.Focus(views[0]); err != nil {
			return err
		}
	}

	program := tea.NewProgram(newViewer(host, sess, cfg.JumpKey), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("viewer: %w", err)
	}
	return sess.Close()
}
