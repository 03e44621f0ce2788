// Command voicegen turns text into speech from the command line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/book-expert/voicegen/internal/config"
	"github.com/book-expert/voicegen/internal/credential"
	"github.com/book-expert/voicegen/internal/download"
	"github.com/book-expert/voicegen/internal/murf"
	"github.com/book-expert/voicegen/internal/session"
	"github.com/book-expert/voicegen/internal/synthesis"
	"github.com/joho/godotenv"
)

// Flag names.
const (
	flagText       = "text"
	flagVoice      = "voice"
	flagStyle      = "style"
	flagPitch      = "pitch"
	flagOutput     = "output"
	flagListVoices = "list-voices"
	flagSetKey     = "set-key"
	flagConfig     = "config"
	flagVerbose    = "verbose"
)

// Flag descriptions.
const (
	flagTextDesc       = "Text to convert to speech"
	flagVoiceDesc      = "Voice display name (defaults to the configured voice)"
	flagStyleDesc      = "Voice style (defaults to the voice's first style)"
	flagPitchDesc      = "Pitch adjustment between -30 and 30"
	flagOutputDesc     = "Output file path (.mp3 is appended when missing)"
	flagListVoicesDesc = "List the available voices and their styles, then exit"
	flagSetKeyDesc     = "Save a new API key, then exit"
	flagConfigDesc     = "Path to a TOML config file (defaults to the central configurator)"
	flagVerboseDesc    = "Enable verbose logging"
)

// Error messages.
const (
	errMissingTextMsg        = "--text must be provided"
	errConflictingActionsMsg = "--set-key and --list-voices cannot be combined"
	errFmtLoadConfig         = "failed to load configuration: %w"
	errFmtInitLogger         = "failed to initialize logger: %w"
	errFmtGenerate           = "generation failed: %s"
	errFmtSaveAudio          = "failed to save audio: %w"
	errFmtLoadEnv            = "failed to load .env file: %w"
)

// Log and output messages.
const (
	logConfigFallback     = "Central configuration unavailable, using defaults: %v"
	logStartFailed        = "Session started without a catalog: %v"
	logProbeFailed        = "Could not inspect saved audio: %v"
	outKeySaved           = "API key saved to %s\n"
	outCatalogUnavailable = "Voice list unavailable: %v\n"
	outVoice              = "%s (%s): %s\n"
	outSaved              = "Saved audio to %s\n"
	outSavedDetails       = "Saved audio to %s (%s, %d Hz)\n"
)

// File names.
const (
	logFileNameDefault = "voicegen.log"
	logFileNameVerbose = "voicegen-verbose.log"
	defaultOutputFile  = "generated_audio.mp3"
)

var (
	errMissingText        = errors.New(errMissingTextMsg)
	errConflictingActions = errors.New(errConflictingActionsMsg)
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text       string
	voice      string
	style      string
	output     string
	setKey     string
	config     string
	pitch      int
	pitchSet   bool
	listVoices bool
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx, os.Args[1:], os.Stdout)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application entry point, returning an error on failure.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	err = validateFlags(flags)
	if err != nil {
		return err
	}

	err = godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf(errFmtLoadEnv, err)
	}

	cfg, log, err := setup(flags.config, flags.verbose)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
		}
	}()

	store := credential.NewStore(cfg.Credential.Path, log)
	sess := session.New(store, murf.Factory(cfg.Murf.BaseURL, cfg.Murf.Timeout()), log)

	if flags.setKey != "" {
		return setKey(ctx, sess, store, flags.setKey, stdout)
	}

	err = sess.Start(ctx, os.Getenv(cfg.Credential.EnvVar))
	if err != nil {
		log.Warn(logStartFailed, err)
	}

	if !sess.Configured() {
		return session.ErrNotConfigured
	}

	if flags.listVoices {
		if err != nil {
			return err
		}

		return listVoices(sess, stdout)
	}

	return generate(ctx, cfg, sess, log, flags, stdout)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("voicegen", flag.ContinueOnError)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	flagSet.StringVar(&flags.style, flagStyle, "", flagStyleDesc)
	flagSet.IntVar(&flags.pitch, flagPitch, 0, flagPitchDesc)
	flagSet.StringVar(&flags.output, flagOutput, "", flagOutputDesc)
	flagSet.BoolVar(&flags.listVoices, flagListVoices, false, flagListVoicesDesc)
	flagSet.StringVar(&flags.setKey, flagSetKey, "", flagSetKeyDesc)
	flagSet.StringVar(&flags.config, flagConfig, "", flagConfigDesc)
	flagSet.BoolVar(&flags.verbose, flagVerbose, false, flagVerboseDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, fmt.Errorf("failed to parse flags: %w", err)
	}

	flagSet.Visit(func(f *flag.Flag) {
		if f.Name == flagPitch {
			flags.pitchSet = true
		}
	})

	return flags, nil
}

// validateFlags rejects combinations that cannot run.
func validateFlags(flags appFlags) error {
	if flags.setKey != "" && flags.listVoices {
		return errConflictingActions
	}

	if flags.setKey == "" && !flags.listVoices && strings.TrimSpace(flags.text) == "" {
		return errMissingText
	}

	return nil
}

// setup loads config and initializes the logger.
func setup(configPath string, verbose bool) (*config.Config, *logger.Logger, error) {
	logFileName := logFileNameDefault
	if verbose {
		logFileName = logFileNameVerbose
	}

	if configPath != "" {
		cfg, err := config.LoadFile(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf(errFmtLoadConfig, err)
		}

		log, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
		if err != nil {
			return nil, nil, fmt.Errorf(errFmtInitLogger, err)
		}

		return cfg, log, nil
	}

	bootstrapLog, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		return nil, nil, fmt.Errorf(errFmtInitLogger, err)
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Warn(logConfigFallback, err)

		return config.Default(), bootstrapLog, nil
	}

	if cfg.Paths.BaseLogsDir == os.TempDir() {
		return cfg, bootstrapLog, nil
	}

	log, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)
		_ = bootstrapLog.Close()

		return nil, nil, fmt.Errorf(errFmtInitLogger, err)
	}

	_ = bootstrapLog.Close()

	return cfg, log, nil
}

func setKey(ctx context.Context, sess *session.Session, store *credential.Store, key string, stdout io.Writer) error {
	update, err := sess.UpdateCredential(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to update api key: %w", err)
	}

	fmt.Fprintf(stdout, outKeySaved, store.Path())

	if update.RefreshErr != nil {
		fmt.Fprintf(stdout, outCatalogUnavailable, update.RefreshErr)
	}

	return nil
}

func listVoices(sess *session.Session, stdout io.Writer) error {
	for _, voice := range sess.Catalog().Voices() {
		fmt.Fprintf(stdout, outVoice, voice.DisplayName, voice.Locale, strings.Join(voice.Styles, ", "))
	}

	return nil
}

// generate resolves the selection, runs the pipeline and saves the audio.
func generate(
	ctx context.Context,
	cfg *config.Config,
	sess *session.Session,
	log *logger.Logger,
	flags appFlags,
	stdout io.Writer,
) error {
	voice, style := resolveSelection(sess, cfg.Defaults.Voice, flags.voice, flags.style)

	pitch := cfg.Defaults.Pitch
	if flags.pitchSet {
		pitch = flags.pitch
	}

	result, err := sess.Generate(ctx, session.Selection{
		Voice: voice,
		Style: style,
		Text:  flags.text,
		Pitch: synthesis.ClampPitch(pitch),
	})
	if err != nil {
		return err
	}

	if !result.OK() {
		return fmt.Errorf(errFmtGenerate, result.ErrorDetail)
	}

	outputPath := flags.output
	if outputPath == "" {
		outputPath = filepath.Join(cfg.Paths.OutputDir, defaultOutputFile)
	}

	downloader := download.NewDownloader(cfg.Murf.DownloadTimeout(), log)

	savedPath, err := downloader.Save(ctx, result.AudioURL, outputPath)
	if err != nil {
		return fmt.Errorf(errFmtSaveAudio, err)
	}

	info, err := download.Probe(savedPath)
	if err != nil {
		log.Warn(logProbeFailed, err)
		fmt.Fprintf(stdout, outSaved, savedPath)

		return nil
	}

	fmt.Fprintf(stdout, outSavedDetails, savedPath, info.Duration, info.SampleRate)

	return nil
}

// resolveSelection fills a blank voice from the configured default and a
// blank style from the voice's first style.
func resolveSelection(sess *session.Session, preferred, voice, style string) (string, string) {
	if voice == "" {
		var firstStyle string

		voice, firstStyle = synthesis.DefaultSelection(sess.Catalog(), preferred)
		if style == "" {
			style = firstStyle
		}

		return voice, style
	}

	if style == "" {
		styles := sess.Catalog().StylesFor(voice)
		if len(styles) > 0 {
			style = styles[0]
		}
	}

	return voice, style
}
