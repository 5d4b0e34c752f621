package wizard

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/cv-wizard/internal/fields"
	"github.com/spigell/cv-wizard/internal/reply"
)

type stubGenerator struct {
	outputs  []string
	errs     []error
	systems  []string
	messages []string
}

func (s *stubGenerator) GenerateContent(_ context.Context, system, message string) (string, error) {
	s.systems = append(s.systems, system)
	s.messages = append(s.messages, message)
	idx := len(s.messages) - 1

	var err error
	if idx < len(s.errs) {
		err = s.errs[idx]
	}
	if err != nil {
		return "", err
	}
	if idx >= len(s.outputs) {
		return "", errors.New("no scripted output left")
	}
	return s.outputs[idx], nil
}

func (s *stubGenerator) Model() string { return "stub" }

type saveCall struct {
	sessionID string
	cv        map[string]any
	updates   map[string]any
	filled    []string
}

type fakePersister struct {
	calls []saveCall
	err   error
}

func (f *fakePersister) Save(_ context.Context, sessionID string, cv map[string]any, updates map[string]any, _ *fields.Schema, filledKeys []string) error {
	f.calls = append(f.calls, saveCall{sessionID: sessionID, cv: cv, updates: updates, filled: filledKeys})
	return f.err
}

func phoneSchema() *fields.Schema {
	return fields.DeriveSchema([]fields.Question{
		{Key: "personal.phone", Label: "Your phone number?"},
		{Key: "personal.email", Label: "Your email?", Chat: boolPtr(false)},
		{Key: "profile.totalYears", Label: "Years of experience?"},
		{Key: "personal.contactEmail", Label: "Contact email?"},
	}, fields.ChannelChat)
}

func boolPtr(v bool) *bool { return &v }

func newTestDriver(t *testing.T, gen *stubGenerator, persister Persister, log *zap.Logger) *Driver {
	t.Helper()
	driver, err := NewDriver(&DriverConfig{}, &DriverDeps{Generator: gen, Persister: persister, Logger: log})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return driver
}

const (
	askPhone  = `{"speakText":"What is your phone number?","answerKey":"personal.phone","inputKind":"text","examples":["+90 532 000 00 00"],"nextAction":"ASK"}`
	savePhone = `{"speakText":"ok","answerKey":"personal.phone","inputKind":"text","nextAction":"SAVE_AND_NEXT","save":{"key":"personal.phone","value":"0532-123 45 67"}}`
	finish    = `{"speakText":"All done, thank you!","nextAction":"FINISH"}`
)

func expectTurnError(t *testing.T, err error, kind ErrorKind) *TurnError {
	t.Helper()
	var turnErr *TurnError
	if !errors.As(err, &turnErr) {
		t.Fatalf("expected TurnError %s, got %v", kind, err)
	}
	if turnErr.Kind != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, turnErr.Kind, err)
	}
	return turnErr
}

func TestAdvanceTurnSavesNormalizedPhone(t *testing.T) {
	gen := &stubGenerator{outputs: []string{askPhone, savePhone}}
	persister := &fakePersister{}
	driver := newTestDriver(t, gen, persister, nil)
	session := NewSession("s1", fields.ChannelChat, phoneSchema())

	opening, err := driver.AdvanceTurn(context.Background(), session, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opening.Reply.NextAction != reply.ActionAsk || opening.Reply.AnswerKey != "personal.phone" {
		t.Fatalf("unexpected opening reply: %+v", opening.Reply)
	}
	if len(session.History) != 1 || session.History[0].Role != RoleAssistant {
		t.Fatalf("expected only the assistant turn after opening, got %+v", session.History)
	}

	res, err := driver.AdvanceTurn(context.Background(), session, "0532-123 45 67")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	value, ok := LookupPath(session.CV, "personal.phone")
	if !ok || value != "05321234567" {
		t.Fatalf("expected normalized phone to be committed, got %v", value)
	}
	if !reflect.DeepEqual(session.FilledKeys, []string{"personal.phone"}) {
		t.Fatalf("unexpected filled keys: %v", session.FilledKeys)
	}

	review := res.Reply.NormalizationReview
	if review == nil {
		t.Fatalf("expected normalization review to be attached")
	}
	if review.Value != "05321234567" || review.Original != "0532-123 45 67" || review.Confidence != 0.85 {
		t.Fatalf("unexpected review: %+v", review)
	}
	if review.Hint != "digits and + only; no letters" {
		t.Fatalf("unexpected review hint: %q", review.Hint)
	}
	if res.Reply.Save.Value != "05321234567" {
		t.Fatalf("expected reply save value to carry normalized form, got %v", res.Reply.Save.Value)
	}

	if len(persister.calls) != 1 {
		t.Fatalf("expected one persistence call, got %d", len(persister.calls))
	}
	call := persister.calls[0]
	if call.sessionID != "s1" || call.updates["personal.phone"] != "05321234567" {
		t.Fatalf("unexpected persistence call: %+v", call)
	}

	expectHistory := []Turn{
		{Role: RoleAssistant, Text: "What is your phone number?"},
		{Role: RoleUser, Text: "0532-123 45 67"},
		{Role: RoleAssistant, Text: "ok"},
	}
	if !reflect.DeepEqual(session.History, expectHistory) {
		t.Fatalf("unexpected history: %+v", session.History)
	}
	if session.State != reply.ActionSaveAndNext {
		t.Fatalf("unexpected state: %s", session.State)
	}
}

func TestAdvanceTurnContractViolationLeavesSessionUntouched(t *testing.T) {
	gen := &stubGenerator{outputs: []string{
		`{"speakText":"ok","answerKey":"personal.email","inputKind":"text","nextAction":"SAVE_AND_NEXT","save":{"key":"personal.email","value":"a@b.co"}}`,
	}}
	persister := &fakePersister{}
	driver := newTestDriver(t, gen, persister, nil)

	session := NewSession("s1", fields.ChannelChat, phoneSchema())
	session.commit("personal.phone", "05321234567")
	session.History = append(session.History, Turn{Role: RoleAssistant, Text: "Email?"})

	beforeCV := cloneCV(session.CV)
	beforeFilled := append([]string(nil), session.FilledKeys...)
	beforeHistory := append([]Turn(nil), session.History...)

	_, err := driver.AdvanceTurn(context.Background(), session, "a@b.co")
	turnErr := expectTurnError(t, err, KindContractViolation)
	if turnErr.Reason != string(reply.ReasonAnswerKeyNotAllowed) {
		t.Fatalf("unexpected reason: %q", turnErr.Reason)
	}
	if turnErr.Retryable() {
		t.Fatalf("contract violations must not be retryable")
	}

	var violation *reply.ContractViolation
	if !errors.As(err, &violation) {
		t.Fatalf("expected the contract violation to be wrapped")
	}

	if !reflect.DeepEqual(session.CV, beforeCV) || !reflect.DeepEqual(session.FilledKeys, beforeFilled) {
		t.Fatalf("session values changed on failed turn")
	}
	if !reflect.DeepEqual(session.History, beforeHistory) {
		t.Fatalf("history changed on failed turn: %+v", session.History)
	}
	if len(persister.calls) != 0 {
		t.Fatalf("persister must not be called on failed turn")
	}
}

func TestAdvanceTurnFailureKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		gen       *stubGenerator
		kind      ErrorKind
		retryable bool
	}{
		{
			name: "extraction failed",
			gen:  &stubGenerator{outputs: []string{"Sorry, I cannot help with that."}},
			kind: KindExtractionFailed,
		},
		{
			name:      "upstream unavailable",
			gen:       &stubGenerator{errs: []error{errors.New("503 service unavailable")}},
			kind:      KindUpstreamUnavailable,
			retryable: true,
		},
		{
			name: "input kind mismatch",
			gen:  &stubGenerator{outputs: []string{`{"speakText":"How many years?","answerKey":"profile.totalYears","inputKind":"text"}`}},
			kind: KindContractViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			driver := newTestDriver(t, tt.gen, nil, nil)
			session := NewSession("s1", fields.ChannelChat, phoneSchema())

			res, err := driver.AdvanceTurn(context.Background(), session, "hello")
			if res != nil {
				t.Fatalf("expected no result, got %+v", res)
			}
			turnErr := expectTurnError(t, err, tt.kind)
			if turnErr.Retryable() != tt.retryable {
				t.Fatalf("unexpected retryable flag %v", turnErr.Retryable())
			}
			if len(session.History) != 0 || len(session.CV) != 0 {
				t.Fatalf("session changed on failed turn: %+v", session)
			}
		})
	}
}

func TestAdvanceTurnRetryAfterUpstreamFailureKeepsHistory(t *testing.T) {
	gen := &stubGenerator{
		errs:    []error{errors.New("connection reset")},
		outputs: []string{"", askPhone},
	}
	driver := newTestDriver(t, gen, nil, nil)
	session := NewSession("s1", fields.ChannelChat, phoneSchema())

	if _, err := driver.AdvanceTurn(context.Background(), session, "hi"); err == nil {
		t.Fatalf("expected first attempt to fail")
	}
	if _, err := driver.AdvanceTurn(context.Background(), session, "hi"); err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}

	if len(session.History) != 2 {
		t.Fatalf("expected user and assistant turn exactly once, got %+v", session.History)
	}
	if gen.messages[0] != gen.messages[1] {
		t.Fatalf("expected the retried turn to send the same context")
	}
}

func TestAdvanceTurnCancelledContextDiscardsResult(t *testing.T) {
	gen := &stubGenerator{outputs: []string{savePhone}}
	driver := newTestDriver(t, gen, nil, nil)
	session := NewSession("s1", fields.ChannelChat, phoneSchema())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := driver.AdvanceTurn(ctx, session, "0532 123 45 67")
	expectTurnError(t, err, KindUpstreamUnavailable)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
	if len(session.FilledKeys) != 0 {
		t.Fatalf("expected no commit after cancellation")
	}
}

func TestAdvanceTurnFinishIsTerminal(t *testing.T) {
	gen := &stubGenerator{outputs: []string{finish, savePhone}}
	driver := newTestDriver(t, gen, nil, nil)
	session := NewSession("s1", fields.ChannelChat, phoneSchema())

	res, err := driver.AdvanceTurn(context.Background(), session, "I want to stop")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Finished || !session.Finished || session.State != reply.ActionFinish {
		t.Fatalf("expected session to be finished: %+v", session)
	}

	historyLen := len(session.History)
	_, err = driver.AdvanceTurn(context.Background(), session, "0532 123 45 67")
	expectTurnError(t, err, KindSessionTerminated)
	if !errors.Is(err, ErrSessionTerminated) {
		t.Fatalf("expected ErrSessionTerminated, got %v", err)
	}
	if len(gen.messages) != 1 {
		t.Fatalf("generator must not be called after FINISH")
	}
	if len(session.History) != historyLen || len(session.FilledKeys) != 0 {
		t.Fatalf("terminated session changed: %+v", session)
	}
}

func TestAdvanceTurnResaveDoesNotDuplicateKey(t *testing.T) {
	gen := &stubGenerator{outputs: []string{savePhone, strings.Replace(savePhone, "0532-123 45 67", "+90 (532) 765 43 21", 1)}}
	driver := newTestDriver(t, gen, nil, nil)
	session := NewSession("s1", fields.ChannelChat, phoneSchema())

	for _, answer := range []string{"0532-123 45 67", "+90 (532) 765 43 21"} {
		if _, err := driver.AdvanceTurn(context.Background(), session, answer); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if !reflect.DeepEqual(session.FilledKeys, []string{"personal.phone"}) {
		t.Fatalf("expected key once, got %v", session.FilledKeys)
	}
	if value, _ := LookupPath(session.CV, "personal.phone"); value != "+905327654321" {
		t.Fatalf("expected latest value, got %v", value)
	}
}

func TestAdvanceTurnSurfacesWarningWithoutReview(t *testing.T) {
	gen := &stubGenerator{outputs: []string{
		`{"speakText":"ok","answerKey":"profile.totalYears","inputKind":"number","nextAction":"SAVE_AND_NEXT","save":{"key":"profile.totalYears","value":"a few years"}}`,
	}}
	driver := newTestDriver(t, gen, nil, nil)
	session := NewSession("s1", fields.ChannelChat, phoneSchema())

	res, err := driver.AdvanceTurn(context.Background(), session, "a few years")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Warning == "" {
		t.Fatalf("expected a normalization warning")
	}
	if res.Reply.NormalizationReview != nil {
		t.Fatalf("unchanged value must not carry a review")
	}
	if value, _ := LookupPath(session.CV, "profile.totalYears"); value != "a few years" {
		t.Fatalf("expected value kept as typed, got %v", value)
	}
}

func TestAdvanceTurnKeepsModelConfidenceAndNonStringValues(t *testing.T) {
	gen := &stubGenerator{outputs: []string{
		`{"speakText":"ok","answerKey":"personal.contactEmail","inputKind":"text","nextAction":"SAVE_AND_NEXT","normalizationReview":{"confidence":0.6},"save":{"key":"personal.contactEmail","value":"  Jane@Example.COM "}}`,
		`{"speakText":"ok","answerKey":"profile.totalYears","inputKind":"number","nextAction":"SAVE_AND_NEXT","save":{"key":"profile.totalYears","value":7}}`,
	}}
	driver := newTestDriver(t, gen, nil, nil)
	session := NewSession("s1", fields.ChannelChat, phoneSchema())

	res, err := driver.AdvanceTurn(context.Background(), session, "Jane@Example.COM")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Reply.NormalizationReview == nil || res.Reply.NormalizationReview.Confidence != 0.6 {
		t.Fatalf("expected model confidence to be kept: %+v", res.Reply.NormalizationReview)
	}
	if value, _ := LookupPath(session.CV, "personal.contactEmail"); value != "jane@example.com" {
		t.Fatalf("unexpected email: %v", value)
	}

	res, err = driver.AdvanceTurn(context.Background(), session, "7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Reply.NormalizationReview != nil {
		t.Fatalf("non-string values are not normalized")
	}
	if value, _ := LookupPath(session.CV, "profile.totalYears"); value != float64(7) {
		t.Fatalf("expected numeric value as is, got %#v", value)
	}
}

func TestAdvanceTurnPersistenceFailureIsNotFatal(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	gen := &stubGenerator{outputs: []string{savePhone}}
	persister := &fakePersister{err: errors.New("database is locked")}
	driver := newTestDriver(t, gen, persister, zap.New(core))
	session := NewSession("s1", fields.ChannelChat, phoneSchema())

	res, err := driver.AdvanceTurn(context.Background(), session, "0532-123 45 67")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SaveErr == nil {
		t.Fatalf("expected SaveErr to be reported")
	}
	if !session.Filled("personal.phone") {
		t.Fatalf("value must stay committed in memory")
	}

	entries := observed.FilterMessage("could not persist session").All()
	if len(entries) != 1 {
		t.Fatalf("expected one warning, got %d", len(entries))
	}
	if entries[0].ContextMap()["session_id"] != "s1" {
		t.Fatalf("expected session id on log entry: %v", entries[0].ContextMap())
	}
}

func TestAdvanceTurnCapsOutboundHistory(t *testing.T) {
	gen := &stubGenerator{outputs: []string{askPhone}}
	driver := newTestDriver(t, gen, nil, nil)
	session := NewSession("s1", fields.ChannelVoice, phoneSchema())
	for i := 0; i < 50; i++ {
		session.History = append(session.History, Turn{Role: RoleAssistant, Text: "q"})
	}

	if _, err := driver.AdvanceTurn(context.Background(), session, "latest answer"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent, err := DecodeContext(gen.messages[0])
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(sent.History) != DefaultHistoryLimit {
		t.Fatalf("expected %d turns, got %d", DefaultHistoryLimit, len(sent.History))
	}
	if last := sent.History[len(sent.History)-1]; last.Role != RoleUser || last.Text != "latest answer" {
		t.Fatalf("expected pending user turn last, got %+v", last)
	}
	if len(session.History) != 52 {
		t.Fatalf("expected full history to be kept, got %d", len(session.History))
	}
	if !strings.Contains(gen.systems[0], "voice") {
		t.Fatalf("expected voice system instruction")
	}
}

func TestNewDriverRequiresGenerator(t *testing.T) {
	if _, err := NewDriver(nil, nil); err == nil {
		t.Fatalf("expected error without generator")
	}
}
