package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/cruciverba/internal/domain/model"
)

// Sentinel errors returned by ContributionStore implementations.
var (
	// ErrContributionNotFound indicates no contribution has the requested ID.
	ErrContributionNotFound = errors.New("contribution not found")

	// ErrDuplicateContribution indicates the (word, clue) pair is already stored.
	ErrDuplicateContribution = errors.New("contribution already exists")
)

// ContributionStore defines the driven port for contribution persistence.
// Insert returns ErrDuplicateContribution when the (word, clue) pair already exists.
// Delete returns ErrContributionNotFound when the ID does not exist.
// FindByWordAndClue returns nil, nil when there is no match.
type ContributionStore interface {
	Insert(ctx context.Context, word, clue, name string) (int64, error)
	ListAll(ctx context.Context) ([]model.Contribution, error)
	Delete(ctx context.Context, id int64) error
	FindByWordAndClue(ctx context.Context, word, clue string) (*model.Contribution, error)
	Count(ctx context.Context) (int, error)
}
