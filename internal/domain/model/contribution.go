package model

import "time"

// AnonymousName is shown in place of an empty contributor name.
const AnonymousName = "Anonimo"

// Contribution is a single word/clue pair submitted by a guest for the crossword.
type Contribution struct {
	ID        int64
	Word      string
	Clue      string
	Name      string
	CreatedAt time.Time
}

// DisplayName returns the contributor name, or AnonymousName when none was given.
func (c Contribution) DisplayName() string {
	if c.Name == "" {
		return AnonymousName
	}
	return c.Name
}
