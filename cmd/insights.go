package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/edalens/internal/ai"
	"github.com/KaramelBytes/edalens/internal/analysis"
	cfgpkg "github.com/KaramelBytes/edalens/internal/config"
	"github.com/KaramelBytes/edalens/internal/utils"
)

var (
	insLoad        loadFlags
	insQuestion    string
	insAPIKey      string
	insModel       string
	insDryRun      bool
	insPrintPrompt bool
	insPromptLimit int
	insQuiet       bool
	insJSON        bool
	insOutputPath  string
	insOutputFmt   string
	insTimeoutSec  int
)

var insightsCmd = &cobra.Command{
	Use:   "insights <file>",
	Short: "Ask a language model for a written analysis of a dataset",
	Example: `  edalens insights sales.csv --dry-run
  edalens insights sales.csv -q "Which region is growing fastest?"
  edalens insights sales.csv --output analysis.md --format markdown`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		c := settings()
		if insJSON {
			insQuiet = true
		}
		out := cmd.OutOrStdout()

		t, err := insLoad.load(path)
		if err != nil {
			return err
		}
		rep, err := analysis.BuildReport(t, analysis.DefaultReportOptions())
		if err != nil {
			return err
		}
		summary := rep.Markdown()
		limit := insPromptLimit
		if limit <= 0 {
			limit = c.ContextTokens
		}
		prompt := ai.BuildPrompt(summary, insQuestion, limit)

		if !insQuiet {
			parts := utils.TokenBreakdown(map[string]string{
				"system":   ai.SystemPrompt,
				"summary":  summary,
				"question": insQuestion,
			})
			total := utils.CountTokens(ai.SystemPrompt) + utils.CountTokens(prompt)
			fmt.Fprintf(out, "Tokens: total≈%d (system≈%d, summary≈%d, question≈%d)\n",
				total, parts["system"], parts["summary"], parts["question"])
		}
		if insDryRun || insPrintPrompt {
			if insDryRun {
				fmt.Fprintln(out, "\n--dry-run: no API call will be made. Prompt preview below --")
			} else {
				fmt.Fprintln(out, "\n--print-prompt: sending the following prompt --")
			}
			fmt.Fprintln(out, prompt)
			if insDryRun {
				return nil
			}
		}

		key := insAPIKey
		if key == "" {
			key = c.APIKey
		}
		if key == "" {
			return fmt.Errorf("%w: pass --api-key, set EDALENS_API_KEY or run 'edalens config set api_key <key>'", ai.ErrMissingAPIKey)
		}
		model := insModel
		if model == "" {
			model = c.Model
		}

		timeout := time.Duration(insTimeoutSec) * time.Second
		if timeout <= 0 {
			timeout = 3 * c.HTTPTimeout()
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		if !insQuiet {
			fmt.Fprintf(out, "⚙ Generating with model=%s ...\n", model)
		}
		start := time.Now()
		text, err := newAnalyst(c, key, model).Analyze(ctx, prompt)
		if err != nil {
			logger.Debug().Err(err).Dur("duration", time.Since(start)).Msg("insight failed")
			return fmt.Errorf("%s (%w)", ai.Explain(err), err)
		}
		logger.Debug().Dur("duration", time.Since(start)).Msg("insight generated")

		return writeInsight(text, insightOutput{
			JSON:         insJSON,
			Quiet:        insQuiet,
			Dataset:      filepath.Base(path),
			Model:        model,
			Question:     insQuestion,
			PromptTokens: utils.CountTokens(prompt),
			OutputPath:   insOutputPath,
			OutputFormat: insOutputFmt,
			Writer:       out,
		})
	},
}

// newAnalyst builds the chat analyst used by the insights command and the
// web server.
func newAnalyst(c *cfgpkg.Global, apiKey, model string) ai.Analyst {
	rt := ai.NewRuntime(ai.RuntimeConfig{
		APIKey:      apiKey,
		BaseURL:     c.BaseURL,
		HTTPTimeout: c.HTTPTimeout(),
		RetryMax:    c.RetryMaxAttempts,
		BaseDelay:   c.RetryBaseDelay(),
		MaxDelay:    c.RetryMaxDelay(),
	})
	a := ai.NewChatAnalyst(rt, model)
	a.Temperature = c.Temperature
	if c.MaxTokens > 0 {
		a.MaxTokens = c.MaxTokens
	}
	return a
}

type insightOutput struct {
	JSON         bool
	Quiet        bool
	Dataset      string
	Model        string
	Question     string
	PromptTokens int
	OutputPath   string
	OutputFormat string
	Writer       io.Writer
}

func (o insightOutput) record(content string) map[string]any {
	return map[string]any{
		"dataset":       o.Dataset,
		"model":         o.Model,
		"question":      o.Question,
		"prompt_tokens": o.PromptTokens,
		"content":       content,
	}
}

// writeInsight prints the response and optionally saves it as text or JSON.
func writeInsight(content string, opts insightOutput) error {
	w := opts.Writer
	if opts.JSON {
		b, err := utils.PrettyJSON(opts.record(content))
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(b))
	} else if opts.Quiet {
		fmt.Fprintln(w, content)
	} else {
		fmt.Fprintln(w, "\n=== AI Analysis ===")
		fmt.Fprintln(w, content)
	}

	if opts.OutputPath == "" {
		return nil
	}
	var data []byte
	switch opts.OutputFormat {
	case "", "text", "markdown", "md":
		data = []byte(content)
	case "json":
		b, err := utils.PrettyJSON(opts.record(content))
		if err != nil {
			return err
		}
		data = b
	default:
		return errors.New("unsupported --format: " + opts.OutputFormat + " (use text|markdown|json)")
	}
	if err := utils.SafeWriteFile(opts.OutputPath, data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if !opts.Quiet {
		fmt.Fprintf(w, "\n✓ Saved output to %s\n", opts.OutputPath)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(insightsCmd)
	insLoad.register(insightsCmd)
	f := insightsCmd.Flags()
	f.StringVarP(&insQuestion, "question", "q", "", "question to ask about the data (default: a general analysis)")
	f.StringVar(&insAPIKey, "api-key", "", "API key for the chat-completions endpoint (default from config)")
	f.StringVar(&insModel, "model", "", "model id (default from config)")
	f.BoolVar(&insDryRun, "dry-run", false, "build the prompt and print it without calling the API")
	f.BoolVar(&insPrintPrompt, "print-prompt", false, "print the prompt before sending it")
	f.IntVar(&insPromptLimit, "prompt-limit", 0, "token budget for the dataset summary (default from config)")
	f.BoolVar(&insQuiet, "quiet", false, "suppress non-essential output")
	f.BoolVar(&insJSON, "json", false, "emit the response as JSON")
	f.StringVar(&insOutputPath, "output", "", "optional path to write the response")
	f.StringVar(&insOutputFmt, "format", "text", "output file format: text|markdown|json")
	f.IntVar(&insTimeoutSec, "timeout-sec", 0, "overall timeout in seconds (default 3× http timeout)")
}
