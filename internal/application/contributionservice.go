package application

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/cruciverba/internal/domain/model"
	"github.com/ericfisherdev/cruciverba/internal/domain/port/driven"
	"github.com/ericfisherdev/cruciverba/internal/metrics"
)

// ErrHoneypot is returned by Submit when the hidden anti-bot field was filled in.
var ErrHoneypot = errors.New("honeypot field filled")

// ExportTimeLayout formats the timestamp column of the CSV export.
const ExportTimeLayout = "2006-01-02 15:04:05"

// exportHeader is the first row of every CSV export.
var exportHeader = []string{"Parola", "Frase Indizio", "Nome", "Data"}

// SubmissionInput holds the raw form values of one contribution.
type SubmissionInput struct {
	Word     string
	Clue     string
	Name     string
	Honeypot string
}

// ContributionService runs the submission workflow (sanitize, validate,
// duplicate guard, insert) and the admin list/delete/export operations.
// It depends only on the ContributionStore port.
type ContributionService struct {
	store     driven.ContributionStore
	sanitizer *Sanitizer
	security  *SecurityLog
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewContributionService creates a ContributionService with the required dependencies.
func NewContributionService(
	store driven.ContributionStore,
	sanitizer *Sanitizer,
	security *SecurityLog,
	m *metrics.Metrics,
	logger *slog.Logger,
) *ContributionService {
	return &ContributionService{
		store:     store,
		sanitizer: sanitizer,
		security:  security,
		metrics:   m,
		logger:    logger,
	}
}

// Submit sanitizes and validates in, rejects duplicates and stores the
// contribution with its word lowercased. Errors:
//   - *ValidationError when a field is invalid
//   - driven.ErrDuplicateContribution when the (word, clue) pair exists
//   - ErrHoneypot when the hidden field was filled in
func (s *ContributionService) Submit(ctx context.Context, in SubmissionInput, clientIP string) (model.Contribution, error) {
	if strings.TrimSpace(in.Honeypot) != "" {
		s.security.Event(EventHoneypotTriggered, clientIP, "hidden field filled")
		s.metrics.Submission(metrics.OutcomeHoneypot)
		return model.Contribution{}, ErrHoneypot
	}

	word := s.sanitizer.Sanitize(in.Word)
	clue := s.sanitizer.Sanitize(in.Clue)
	name := s.sanitizer.Sanitize(in.Name)

	if verr := ValidateSubmission(word, clue, name); verr != nil {
		s.metrics.Submission(metrics.OutcomeInvalid)
		return model.Contribution{}, verr
	}

	word = strings.ToLower(word)

	duplicate, err := s.IsDuplicate(ctx, word, clue)
	if err != nil {
		s.metrics.Submission(metrics.OutcomeError)
		return model.Contribution{}, err
	}
	if duplicate {
		s.metrics.Submission(metrics.OutcomeDuplicate)
		return model.Contribution{}, driven.ErrDuplicateContribution
	}

	id, err := s.store.Insert(ctx, word, clue, name)
	if errors.Is(err, driven.ErrDuplicateContribution) {
		// Lost the race against an identical concurrent submission.
		s.metrics.Submission(metrics.OutcomeDuplicate)
		return model.Contribution{}, driven.ErrDuplicateContribution
	}
	if err != nil {
		s.metrics.Submission(metrics.OutcomeError)
		return model.Contribution{}, fmt.Errorf("store contribution: %w", err)
	}

	s.logger.Info("new contribution", "id", id, "client_ip", clientIP, "word", preview(word, 10))
	s.metrics.Submission(metrics.OutcomeAccepted)

	return model.Contribution{ID: id, Word: word, Clue: clue, Name: name}, nil
}

// IsDuplicate reports whether a contribution with the same lowercased word
// and the exact same clue is already stored.
func (s *ContributionService) IsDuplicate(ctx context.Context, word, clue string) (bool, error) {
	existing, err := s.store.FindByWordAndClue(ctx, strings.ToLower(word), clue)
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return existing != nil, nil
}

// List returns all contributions, newest first.
func (s *ContributionService) List(ctx context.Context) ([]model.Contribution, error) {
	contributions, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	return contributions, nil
}

// Count returns the number of stored contributions.
func (s *ContributionService) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

// Delete removes a contribution by ID. Returns driven.ErrContributionNotFound
// (wrapped) when the ID does not exist; the store is left unchanged.
func (s *ContributionService) Delete(ctx context.Context, id int64, clientIP string) error {
	err := s.store.Delete(ctx, id)
	switch {
	case errors.Is(err, driven.ErrContributionNotFound):
		s.metrics.Deletion("not_found")
		return err
	case err != nil:
		s.metrics.Deletion("error")
		return err
	}

	s.logger.Info("contribution deleted", "id", id, "client_ip", clientIP)
	s.metrics.Deletion("deleted")
	return nil
}

// ExportCSV writes every contribution to w as CSV, newest first, with a header
// row. An empty name is written as model.AnonymousName.
func (s *ContributionService) ExportCSV(ctx context.Context, w io.Writer) error {
	contributions, err := s.List(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, c := range contributions {
		var createdAt string
		if !c.CreatedAt.IsZero() {
			createdAt = c.CreatedAt.Format(ExportTimeLayout)
		}
		if err := cw.Write([]string{c.Word, c.Clue, c.DisplayName(), createdAt}); err != nil {
			return fmt.Errorf("write csv row %d: %w", c.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	s.metrics.Export()
	return nil
}

// preview returns at most n runes of s.
func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
