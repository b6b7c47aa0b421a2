package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/zhouzirui/ollama-tavern/internal/config"
	"github.com/zhouzirui/ollama-tavern/internal/console"
	"github.com/zhouzirui/ollama-tavern/internal/logging"
	"github.com/zhouzirui/ollama-tavern/internal/model/persona"
	"github.com/zhouzirui/ollama-tavern/internal/service/ai"
	"github.com/zhouzirui/ollama-tavern/internal/service/chat"
)

type rootOptions struct {
	persona string
	model   string
	debug   bool
	plain   bool
}

// env is what every subcommand needs once flags are parsed.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	styles console.Styles
	out    io.Writer
}

func newRootCmd() *cobra.Command {
	v := config.New()
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "tavern",
		Short: "Roleplay with a local Ollama model as a character from a .prompt file",
		Long: `tavern starts an interactive roleplay chat. The character comes from a
.prompt file in the current directory and the model from your local Ollama.

Examples:
  tavern                                  # pick a character and a model
  tavern --persona ranger --model llama3  # skip the menus
  tavern models                           # list installed models
  tavern personas                         # list characters`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, v, opts.debug)
			if err != nil {
				return err
			}
			defer func() { _ = e.logger.Sync() }()
			return runChat(cmd.Context(), cmd, e, opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("host", "", "Ollama server address (env OLLAMA_HOST)")
	flags.String("pattern", "", "glob for persona files, ** allowed (env PERSONA_PATTERN)")
	flags.String("provider", "", "model backend: ollama or ark (env LLM_PROVIDER)")
	flags.BoolVar(&opts.debug, "debug", false, "log debug output to stderr")
	_ = v.BindPFlag("ollama.host", flags.Lookup("host"))
	_ = v.BindPFlag("persona.pattern", flags.Lookup("pattern"))
	_ = v.BindPFlag("llm.provider", flags.Lookup("provider"))

	cmd.Flags().StringVarP(&opts.persona, "persona", "p", "", "character id or file name, skips the menu")
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "model name, skips the menu")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "use numbered menus even on a terminal")

	cmd.AddCommand(newModelsCmd(v, &opts.debug), newPersonasCmd(v, &opts.debug))
	return cmd
}

// setup loads .env and configuration and builds the stderr logger.
func setup(cmd *cobra.Command, v *viper.Viper, debug bool) (*env, error) {
	envErr := godotenv.Load()

	cfg, err := config.LoadFrom(v)
	if err != nil {
		return nil, err
	}

	logCfg := config.LogConfig{Level: "warn", Format: "console"}
	if debug {
		logCfg.Level = "debug"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.Warn("failed to load .env file", zap.Error(envErr))
	}

	return &env{
		cfg:    cfg,
		logger: logger,
		styles: console.NewStyles(cmd.OutOrStdout()),
		out:    cmd.OutOrStdout(),
	}, nil
}

func runChat(ctx context.Context, cmd *cobra.Command, e *env, opts *rootOptions) error {
	store := persona.NewFileStore(e.cfg.Persona.Pattern, e.logger.Named("persona"))
	backend, err := ai.NewBackend(ctx, e.cfg, e.logger)
	if err != nil {
		return err
	}

	var in *console.LineReader
	lines := func() *console.LineReader {
		if in == nil {
			in = console.NewLineReader(cmd.InOrStdin())
		}
		return in
	}

	var picker console.Picker
	if !opts.plain && isTerminal(cmd.InOrStdin()) && isTerminal(cmd.OutOrStdout()) {
		picker = console.HuhPicker{}
	} else {
		picker = &console.NumberedPicker{In: lines(), Out: e.out, Styles: e.styles}
	}

	p, err := choosePersona(ctx, e, store, picker, opts.persona)
	if err != nil {
		return interrupted(ctx, e, err)
	}
	model, err := chooseModel(ctx, e, backend, picker, opts.model)
	if err != nil {
		return interrupted(ctx, e, err)
	}

	session, err := chat.NewSession(p, model, backend, chat.WithLogger(e.logger.Named("session")))
	if err != nil {
		return err
	}

	loop := &console.Chat{
		Session: session,
		In:      lines(),
		Out:     e.out,
		Styles:  e.styles,
		Logger:  e.logger,
	}
	return loop.Run(ctx)
}

func choosePersona(ctx context.Context, e *env, store *persona.FileStore, picker console.Picker, ref string) (persona.Persona, error) {
	if ref != "" {
		return store.Resolve(ref)
	}
	items := store.List()
	if len(items) == 0 {
		return persona.Persona{}, fmt.Errorf("no persona files found matching %q; create one, e.g. ranger.prompt", store.Pattern())
	}
	p, err := picker.PickPersona(ctx, items)
	if err != nil {
		return persona.Persona{}, err
	}
	fmt.Fprintf(e.out, "[INFO] Loaded character %s from %s.\n", p.Name, p.File)
	return p, nil
}

func chooseModel(ctx context.Context, e *env, dir ai.Directory, picker console.Picker, name string) (string, error) {
	if name != "" {
		return name, nil
	}
	models := ai.Discover(ctx, dir, e.logger)
	if len(models) == 0 {
		return "", fmt.Errorf("no models found at %s; pull one first, e.g. 'ollama pull llama3'", e.cfg.Ollama.Host)
	}
	m, err := picker.PickModel(ctx, models)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(e.out, "[INFO] Selected model: %s\n", m.Name)
	return m.Name, nil
}

// interrupted turns a cancelled menu into a clean exit.
func interrupted(ctx context.Context, e *env, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		fmt.Fprintln(e.out, "\nFarewell, Adventurer!")
		return nil
	}
	return err
}

func isTerminal(stream interface{}) bool {
	f, ok := stream.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
