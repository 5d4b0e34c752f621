// Package wizard drives the multi-turn conversation that collects CV fields
// through a generative text service.
package wizard

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/cv-wizard/internal/ai"
	"github.com/spigell/cv-wizard/internal/fields"
	"github.com/spigell/cv-wizard/internal/logger"
	"github.com/spigell/cv-wizard/internal/normalize"
	"github.com/spigell/cv-wizard/internal/reply"
	"github.com/spigell/cv-wizard/internal/utils"
)

const (
	defaultMaxLogLength = 200
	defaultConfidence   = 0.85
)

// Persister stores the collected values of a session. Failures are reported
// back to the caller but never undo the in-memory turn.
type Persister interface {
	Save(ctx context.Context, sessionID string, cv map[string]any, updates map[string]any, schema *fields.Schema, filledKeys []string) error
}

type DriverConfig struct {
	HistoryLimit int
	MaxLogLength int
}

type DriverDeps struct {
	Generator ai.Generator
	Persister Persister
	Logger    *zap.Logger
}

// TurnResult is the outcome of a successful turn.
type TurnResult struct {
	Reply    *reply.Reply
	Finished bool
	// SaveErr is set when the value was committed in memory but could not be persisted.
	SaveErr error
	// Warning carries a normalization warning for a value that was saved unchanged.
	Warning string
}

// Driver advances sessions one turn at a time.
type Driver struct {
	generator    ai.Generator
	persister    Persister
	historyLimit int
	maxLogLen    int
	logger       *zap.Logger
}

// NewDriver builds a Driver. The generator is required; the persister is optional.
func NewDriver(cfg *DriverConfig, deps *DriverDeps) (*Driver, error) {
	if deps == nil || deps.Generator == nil {
		return nil, errors.New("wizard driver requires a generator")
	}
	if cfg == nil {
		cfg = &DriverConfig{}
	}

	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	maxLogLen := cfg.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	return &Driver{
		generator:    deps.Generator,
		persister:    deps.Persister,
		historyLimit: historyLimit,
		maxLogLen:    maxLogLen,
		logger:       logger.WithFields(deps.Logger),
	}, nil
}

// AdvanceTurn runs one exchange for s. utterance is empty on the opening call.
// Every failure is a *TurnError and leaves s unchanged.
func (d *Driver) AdvanceTurn(ctx context.Context, s *Session, utterance string) (*TurnResult, error) {
	if s == nil {
		return nil, turnError(KindSessionTerminated, "", errors.New("session is nil"))
	}

	log := d.logger.With(logger.SessionFields(s.ID, string(s.Channel))...)

	if s.Finished {
		log.Debug("rejecting turn for finished session")
		return nil, turnError(KindSessionTerminated, "", ErrSessionTerminated)
	}

	history := s.History
	var userTurn *Turn
	if text := strings.TrimSpace(utterance); text != "" {
		userTurn = &Turn{Role: RoleUser, Text: text}
		history = append(history[:len(history):len(history)], *userTurn)
	}

	payload, err := BuildContext(s, history, d.historyLimit).Encode()
	if err != nil {
		return nil, turnError(KindUpstreamUnavailable, "", err)
	}

	log.Debug("generator request",
		zap.Int("history_length", len(history)),
		zap.Int("payload_length", utf8.RuneCountInString(payload)),
		zap.String("payload_preview", utils.TruncateForLog(payload, d.maxLogLen)),
	)

	raw, err := d.generator.GenerateContent(ctx, SystemInstruction(s.Channel), payload)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		log.Warn("generator unavailable", zap.Error(err))
		return nil, turnError(KindUpstreamUnavailable, "", err)
	}

	log.Debug("generator response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, d.maxLogLen)),
	)

	obj, err := reply.Extract(raw)
	if err != nil {
		log.Warn("assistant output unusable",
			zap.Error(err),
			zap.String("response_preview", utils.TruncateForLog(raw, d.maxLogLen)),
		)
		return nil, turnError(KindExtractionFailed, "", err)
	}

	r, err := reply.Validate(obj, s.Schema())
	if err != nil {
		var violation *reply.ContractViolation
		if errors.As(err, &violation) {
			log.Warn("assistant reply rejected",
				zap.String(logger.FieldReason, string(violation.Reason)),
				zap.String("detail", violation.Detail),
			)
			return nil, turnError(KindContractViolation, string(violation.Reason), err)
		}
		return nil, turnError(KindContractViolation, "", err)
	}

	log = log.With(
		zap.String(logger.FieldAnswerKey, r.AnswerKey),
		zap.String(logger.FieldNextAction, string(r.NextAction)),
	)

	result := &TurnResult{Reply: r}

	var updates map[string]any
	if r.NextAction == reply.ActionSaveAndNext {
		result.Warning = d.normalizeSave(s.Schema(), r)
		updates = map[string]any{r.Save.Key: r.Save.Value}
	}

	// Nothing below may fail: the reply is accepted and the session is updated.
	if updates != nil {
		s.commit(r.Save.Key, r.Save.Value)
	}
	if userTurn != nil {
		s.History = append(s.History, *userTurn)
	}
	s.History = append(s.History, Turn{Role: RoleAssistant, Text: r.DisplayText})
	s.State = r.NextAction
	if r.NextAction == reply.ActionFinish {
		s.Finished = true
		result.Finished = true
	}

	if updates != nil && d.persister != nil {
		filled := make([]string, len(s.FilledKeys))
		copy(filled, s.FilledKeys)
		if err := d.persister.Save(ctx, s.ID, cloneCV(s.CV), updates, s.Schema(), filled); err != nil {
			log.Warn("could not persist session", zap.Error(err))
			result.SaveErr = err
		}
	}

	filledCount, total := s.Progress()
	log.Info("turn completed",
		zap.Int("filled", filledCount),
		zap.Int("total", total),
		zap.Bool("finished", s.Finished),
	)

	return result, nil
}

// normalizeSave rewrites r.Save.Value into its canonical form and attaches a
// review block when the value changed. It returns a warning for values that
// were kept as typed.
func (d *Driver) normalizeSave(schema *fields.Schema, r *reply.Reply) string {
	raw, ok := r.Save.Value.(string)
	if !ok {
		return ""
	}

	rule, _ := schema.Rule(r.Save.Key)
	semantic := rule.Semantic
	if semantic == "" {
		semantic = fields.SemanticFreeText
	}

	res := normalize.Normalize(semantic, raw)
	r.Save.Value = res.Value
	if !res.Changed {
		return res.Warning
	}

	confidence := defaultConfidence
	if r.NormalizationReview != nil && r.NormalizationReview.Confidence > 0 {
		confidence = r.NormalizationReview.Confidence
	}
	r.NormalizationReview = &reply.NormalizationReview{
		Hint:       rule.NormalizeHint,
		Original:   raw,
		Value:      res.Value,
		Confidence: confidence,
		Warning:    res.Warning,
	}

	d.logger.Debug("normalized saved value",
		zap.String(logger.FieldAnswerKey, r.Save.Key),
		zap.String("semantic", string(semantic)),
	)
	return ""
}
