package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-wizard/internal/fields"
	"github.com/spigell/cv-wizard/internal/logger"
	"github.com/spigell/cv-wizard/internal/reply"
	"github.com/spigell/cv-wizard/internal/wizard"
)

const (
	PromptRetry = "Retry"
	PromptQuit  = "Quit"
	PromptOther = "Other..."
)

var errQuit = errors.New("quit requested")

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Fill in your CV in an interactive terminal conversation",
	Run: func(cmd *cobra.Command, _ []string) {
		chat(cmd)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func chat(cmd *cobra.Command) {
	ctx := context.Background()

	// logs go to stderr so they do not interleave with the prompts
	logger, err := logger.NewWithOutput(viper.GetBool("json"), viper.GetBool("debug"), "stderr")
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		logger.Fatal("config is required")
	}

	questions, err := loadQuestions(config)
	if err != nil {
		logger.Fatal("loading questions", zap.Error(err))
	}

	channel := fields.ParseChannel(config.Channel)
	schema := fields.DeriveSchema(questions, channel)
	if schema.Len() == 0 {
		logger.Fatal("no questions are enabled for the channel", zap.String("channel", string(channel)))
	}

	driver, st, err := newDriver(ctx, config, logger)
	if err != nil {
		logger.Fatal("preparing the wizard", zap.Error(err))
	}
	defer st.Close()

	session := wizard.NewSession(uuid.NewString(), channel, schema)
	logger.Info("starting the cv-wizard",
		zap.String("version", version),
		zap.String("session_id", session.ID),
		zap.Int("fields", schema.Len()),
	)

	if err := converse(ctx, cmd.OutOrStdout(), driver, session, logger); err != nil {
		if errors.Is(err, errQuit) || errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			logger.Info("exiting", zap.String("reason", "interrupted"))
			return
		}
		logger.Fatal("exiting", zap.Error(err))
	}

	pretty, _ := json.MarshalIndent(session.CV, "", "  ")
	fmt.Fprintf(cmd.OutOrStdout(), "\nCollected CV:\n%s\n", pretty)
}

func converse(ctx context.Context, out io.Writer, driver *wizard.Driver, session *wizard.Session, logger *zap.Logger) error {
	var last *reply.Reply
	utterance := ""

	for {
		res, err := driver.AdvanceTurn(ctx, session, utterance)
		if err != nil {
			retry, err := handleTurnError(out, err, last == nil)
			if err != nil {
				return err
			}
			if !retry {
				if utterance, err = askUser(session.Schema(), last); err != nil {
					return err
				}
			}
			continue
		}

		last = res.Reply
		render(out, res, logger)

		if res.Finished {
			return nil
		}

		if utterance, err = askUser(session.Schema(), last); err != nil {
			return err
		}
	}
}

// handleTurnError tells the user what went wrong. It returns true when the
// same turn should be sent again and false when a fresh answer is needed.
func handleTurnError(out io.Writer, err error, opening bool) (bool, error) {
	switch wizard.KindOf(err) {
	case wizard.KindSessionTerminated:
		return false, err
	case wizard.KindUpstreamUnavailable:
		fmt.Fprintln(out, "The assistant is unavailable right now.")
		return confirmRetry()
	case wizard.KindExtractionFailed, wizard.KindContractViolation:
		fmt.Fprintln(out, "The assistant produced an answer we could not use.")
		if opening {
			return confirmRetry()
		}
		fmt.Fprintln(out, "Please answer the last question again.")
		return false, nil
	default:
		return false, err
	}
}

func confirmRetry() (bool, error) {
	prompt := promptui.Select{
		Label: "Try again?",
		Items: []string{PromptRetry, PromptQuit},
	}
	_, action, err := prompt.Run()
	if err != nil {
		return false, err
	}
	if action == PromptQuit {
		return false, errQuit
	}
	return true, nil
}

func render(out io.Writer, res *wizard.TurnResult, logger *zap.Logger) {
	r := res.Reply

	if review := r.NormalizationReview; review != nil {
		fmt.Fprintf(out, "Saved %q as %q.\n", review.Original, review.Value)
	}
	if res.Warning != "" {
		fmt.Fprintf(out, "Note: %s.\n", res.Warning)
	}
	if res.SaveErr != nil {
		logger.Warn("answer kept in memory only", zap.Error(res.SaveErr))
		fmt.Fprintln(out, "Your answer could not be saved, but we can continue.")
	}

	if r.Progress != nil {
		fmt.Fprintf(out, "\n[%d/%d] %s\n", r.Progress.Step, r.Progress.Total, r.DisplayText)
		return
	}
	fmt.Fprintf(out, "\n%s\n", r.DisplayText)
}

// askUser collects the answer to r. Select fields offer their examples.
func askUser(schema *fields.Schema, r *reply.Reply) (string, error) {
	if r == nil {
		return "", nil
	}

	rule, _ := schema.Rule(r.AnswerKey)
	label := rule.Label
	if label == "" {
		label = "Your answer"
	}

	if r.InputKind == fields.InputSelect && len(r.Examples) > 0 {
		prompt := promptui.Select{
			Label: label,
			Items: append(append([]string{}, r.Examples...), PromptOther),
		}
		_, choice, err := prompt.Run()
		if err != nil {
			return "", err
		}
		if choice != PromptOther {
			return choice, nil
		}
	}

	validation := r.Validation
	if validation == nil {
		validation = rule.Validation
	}

	prompt := promptui.Prompt{Label: label}
	if validation != nil {
		prompt.Validate = validation.Check
	}
	return prompt.Run()
}
