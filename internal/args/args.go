package args

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/markis/gpt-markup-preview/internal/config"
)

// ErrNoRun is returned when the command line only asked for help.
var ErrNoRun = errors.New("nothing to run")

// DefaultPrompt asks for wild CSS for a small HTML snippet.
const DefaultPrompt = "Generate eccentric, psychedelic CSS for the following input.\n" +
	"Always wrap code in markdown ``` fenced code blocks.\n\n" +
	"Input:\n" +
	"```html\n" +
	"<div class=\"container\">\n" +
	"  <p class=\"text\">Hello</p>\n" +
	"</div>\n" +
	"```\n"

// Arguments represents the command-line arguments structure.
type Arguments struct {
	Prompts      []string
	Model        string
	Command      string
	UsePlainText bool
	PreviewPath  string
	NoPreview    bool
	Debug        bool
	JSONLog      bool
}

// Prompt joins all prompt parts into the user message.
func (a Arguments) Prompt() string {
	return strings.Join(a.Prompts, "\n\n")
}

// ParseArgs parses argv and stdin input, returning an Arguments struct.
// It uses Cobra to handle commands and flags, allowing for both predefined
// commands and direct prompts. Without any prompt the DefaultPrompt is used.
func ParseArgs(ctx context.Context, cfg config.Config, argv []string, stdin *os.File) (Arguments, error) {
	args := Arguments{}
	ran := false

	rootCmd := &cobra.Command{
		Use:   "gpt-markup-preview [command] [flags] [prompt]",
		Short: "Stream generated markup from a chat model and build a live HTML preview",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			ran = true
			// Handle direct prompts (when no command is specified)
			if len(cmdArgs) > 0 {
				args.Prompts = append(args.Prompts, cmdArgs[0])
			}
			return nil
		},
		SilenceErrors: true, // We'll handle error reporting
		SilenceUsage:  true, // We'll handle usage display
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&args.Model, "model", cfg.Model, "The AI model to use")
	flags.BoolVar(&args.UsePlainText, "plain", shouldUsePlainText(cfg), "Disable markdown rendering")
	flags.StringVar(&args.PreviewPath, "preview", cfg.Preview.Output, "File the HTML preview is written to")
	flags.BoolVar(&args.NoPreview, "no-preview", cfg.Preview.Disabled, "Do not write an HTML preview")
	flags.BoolVar(&args.Debug, "debug", false, "Enable debug logging")
	flags.BoolVar(&args.JSONLog, "json-log", false, "Write logs as JSON")

	// Add predefined commands
	for name, prompt := range cfg.Prompts {
		cmd := &cobra.Command{
			Use:   name + " [input]",
			Short: summarizePrompt(prompt.Prompt),
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, cmdArgs []string) error {
				ran = true
				args.Command = name
				if len(cmdArgs) > 0 {
					args.Prompts = append(args.Prompts, cmdArgs[0])
				}
				args.Prompts = append(args.Prompts, prompt.Prompt)
				if prompt.Model != "" && !cmd.Flags().Changed("model") {
					args.Model = prompt.Model
				}
				return nil
			},
		}
		rootCmd.AddCommand(cmd)
	}

	// Read from stdin if available
	if stdin != nil && !term.IsTerminal(int(stdin.Fd())) {
		if stat, err := stdin.Stat(); err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
			scanner := bufio.NewScanner(stdin)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024) // 1MB max buffer
			var buf strings.Builder
			for scanner.Scan() {
				buf.WriteString(scanner.Text())
				buf.WriteByte('\n')
			}
			if err := scanner.Err(); err != nil {
				return Arguments{}, fmt.Errorf("failed to read stdin: %w", err)
			}
			if prompt := strings.TrimSpace(buf.String()); prompt != "" {
				args.Prompts = append(args.Prompts, prompt)
			}
		}
	}

	// Execute the command
	if argv == nil {
		argv = []string{}
	}
	rootCmd.SetArgs(argv)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return Arguments{}, err
	}
	if !ran {
		return Arguments{}, ErrNoRun
	}

	if len(args.Prompts) == 0 {
		args.Prompts = []string{DefaultPrompt}
	}

	return args, nil
}

// shouldUsePlainText determines if plain text output should be used based on environment and terminal settings.
func shouldUsePlainText(cfg config.Config) bool {
	// Check if the rendering format is set to plain
	if cfg.Render.Format == "plain" {
		return true
	}

	// Check if output is being redirected
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return true
	}

	// Check for NO_COLOR environment variable
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return true
	}

	// Check for TERM=dumb
	if termEnv := os.Getenv("TERM"); termEnv == "dumb" {
		return true
	}

	return false
}

func summarizePrompt(prompt string) string {
	// Trim and limit the length of the prompt summary
	summary := strings.TrimSpace(prompt)
	if len(summary) > 60 {
		summary = summary[:57] + "..."
	}
	return summary
}
