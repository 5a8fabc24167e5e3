//go:build cucumber

package review

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"qbank/internal/question"
)

// TestReviewSessionScenarios runs the review session feature scenarios.
func TestReviewSessionScenarios(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "review-session",
		ScenarioInitializer: InitializeReviewScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{filepath.Join("testdata", "review_session.feature")},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatalf("non-zero godog status")
	}
}

// InitializeReviewScenario wires steps for review session scenarios.
func InitializeReviewScenario(ctx *godog.ScenarioContext) {
	state := &reviewScenarioState{}
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		state.reset()
		return ctx, nil
	})

	ctx.Step(`^pasted text with (\d+) questions where (\d+) is malformed$`, state.givenPastedText)
	ctx.Step(`^the pool store is failing$`, state.givenFailingStore)
	ctx.Step(`^I load the text asking for (\d+) questions$`, state.whenLoad)
	ctx.Step(`^I approve candidate (\d+)$`, state.whenApprove)
	ctx.Step(`^I commit to pool (\d+)$`, state.whenCommit)
	ctx.Step(`^the session holds (\d+) candidates$`, state.thenCandidateCount)
	ctx.Step(`^the report says "([^"]+)"$`, state.thenReportSummary)
	ctx.Step(`^the report has a segmentation shortfall warning$`, state.thenShortfallWarning)
	ctx.Step(`^the pool receives (\d+) questions in one batch$`, state.thenPoolReceives)
	ctx.Step(`^the saved stems are "([^"]+)" then "([^"]+)"$`, state.thenSavedStems)
	ctx.Step(`^the session is "([^"]+)"$`, state.thenSessionState)
	ctx.Step(`^the commit fails with "([^"]+)"$`, state.thenCommitFails)
	ctx.Step(`^(\d+) candidate is still approved$`, state.thenApprovedCount)
}

type reviewScenarioState struct {
	text      string
	saver     *fakeSaver
	session   *Session
	report    question.Report
	commitErr error
}

// reset clears scenario state.
func (s *reviewScenarioState) reset() {
	s.text = ""
	s.saver = &fakeSaver{}
	s.session = NewSession()
	s.report = question.Report{}
	s.commitErr = nil
}

// givenPastedText seeds a quiz with some malformed blocks at the end.
func (s *reviewScenarioState) givenPastedText(total, malformed int) error {
	if total != 3 || malformed != 1 {
		return fmt.Errorf("only the 3/1 fixture is available")
	}
	s.text = pastedQuiz
	return nil
}

// givenFailingStore makes every save fail.
func (s *reviewScenarioState) givenFailingStore() error {
	s.saver.err = errors.New("connection reset")
	return nil
}

// whenLoad runs the pipeline and loads the survivors.
func (s *reviewScenarioState) whenLoad(requested int) error {
	res, err := question.Run(s.text, question.RunOptions{Requested: requested})
	if err != nil {
		return err
	}
	s.report = res.Report
	return s.session.Load(res.Candidates)
}

// whenApprove toggles the nth candidate (1-based).
func (s *reviewScenarioState) whenApprove(n int) error {
	cands := s.session.Snapshot().Candidates
	if n < 1 || n > len(cands) {
		return fmt.Errorf("no candidate %d", n)
	}
	_, err := s.session.ToggleApproval(cands[n-1].ID)
	return err
}

// whenCommit commits through a batch committer.
func (s *reviewScenarioState) whenCommit(poolID int) error {
	_, s.commitErr = s.session.Commit(context.Background(), NewBatchCommitter(s.saver), int64(poolID))
	return nil
}

// thenCandidateCount asserts the loaded candidate count.
func (s *reviewScenarioState) thenCandidateCount(n int) error {
	if got := len(s.session.Snapshot().Candidates); got != n {
		return fmt.Errorf("expected %d candidates, got %d", n, got)
	}
	return nil
}

func (s *reviewScenarioState) thenReportSummary(want string) error {
	if got := s.report.Summary(); got != want {
		return fmt.Errorf("expected summary %q, got %q", want, got)
	}
	return nil
}

func (s *reviewScenarioState) thenShortfallWarning() error {
	for _, w := range s.report.Warnings {
		if w.Kind == question.WarningShortfall {
			return nil
		}
	}
	return fmt.Errorf("no shortfall warning in %+v", s.report.Warnings)
}

// thenPoolReceives asserts one save call with n items.
func (s *reviewScenarioState) thenPoolReceives(n int) error {
	if s.commitErr != nil {
		return fmt.Errorf("commit failed: %w", s.commitErr)
	}
	if s.saver.calls != 1 || len(s.saver.items) != n {
		return fmt.Errorf("expected 1 call with %d items, got %d calls with %d items", n, s.saver.calls, len(s.saver.items))
	}
	return nil
}

func (s *reviewScenarioState) thenSavedStems(first, second string) error {
	if len(s.saver.items) != 2 || s.saver.items[0].Stem != first || s.saver.items[1].Stem != second {
		return fmt.Errorf("unexpected saved items %+v", s.saver.items)
	}
	return nil
}

func (s *reviewScenarioState) thenSessionState(want string) error {
	if got := s.session.State().String(); got != want {
		return fmt.Errorf("expected state %s, got %s", want, got)
	}
	return nil
}

func (s *reviewScenarioState) thenCommitFails(msg string) error {
	if s.commitErr == nil {
		return fmt.Errorf("expected commit to fail")
	}
	if !strings.Contains(s.commitErr.Error(), msg) {
		return fmt.Errorf("expected error containing %q, got %v", msg, s.commitErr)
	}
	return nil
}

func (s *reviewScenarioState) thenApprovedCount(n int) error {
	if got := s.session.Snapshot().ApprovedCount; got != n {
		return fmt.Errorf("expected %d approved, got %d", n, got)
	}
	return nil
}
