package domain

import (
	"errors"
	"fmt"
	"time"
)

// ChallengeStatus tracks the user's progress on a weekly challenge.
type ChallengeStatus string

const (
	ChallengeActive    ChallengeStatus = "active"
	ChallengeCompleted ChallengeStatus = "completed"
	ChallengeLost      ChallengeStatus = "lost"
)

func (s ChallengeStatus) Valid() bool {
	return s == ChallengeActive || s == ChallengeCompleted || s == ChallengeLost
}

// MaxChallengeSteps bounds the themed set of a challenge.
const MaxChallengeSteps = 7

var ErrStepOutOfRange = errors.New("challenge step out of range")

// ChallengeItem is a resolved catalog item inside a challenge.
type ChallengeItem struct {
	CanonicalID int64     `json:"canonical_id"`
	Kind        MediaKind `json:"media_kind"`
	Title       string    `json:"title"`
	PosterURL   string    `json:"poster_url,omitempty"`
}

// ChallengeStep is one ordered item of a multi-step challenge.
type ChallengeStep struct {
	ChallengeItem
	Completed bool `json:"completed"`
}

// Challenge is created once per week id and afterwards only mutated in
// place (step completion, status).
type Challenge struct {
	WeekID    string          `json:"week_id"`
	Theme     string          `json:"theme"`
	Rationale string          `json:"rationale"`
	Status    ChallengeStatus `json:"status"`
	Target    *ChallengeItem  `json:"target,omitempty"`
	Steps     []ChallengeStep `json:"steps,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewChallenge builds an active challenge. A single item becomes the target,
// several become ordered steps.
func NewChallenge(weekID, theme, rationale string, items []ChallengeItem, now time.Time) (Challenge, error) {
	if len(items) == 0 {
		return Challenge{}, errors.New("challenge needs at least one item")
	}
	if len(items) > MaxChallengeSteps {
		return Challenge{}, fmt.Errorf("challenge has %d items, max %d", len(items), MaxChallengeSteps)
	}
	c := Challenge{
		WeekID:    weekID,
		Theme:     theme,
		Rationale: rationale,
		Status:    ChallengeActive,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	if len(items) == 1 {
		it := items[0]
		c.Target = &it
		return c, nil
	}
	for _, it := range items {
		c.Steps = append(c.Steps, ChallengeStep{ChallengeItem: it})
	}
	return c, nil
}

// SetStep toggles completion of step index. The challenge completes once every
// step is done and becomes active again if a step is unchecked.
func (c *Challenge) SetStep(index int, completed bool, now time.Time) error {
	if index < 0 || index >= len(c.Steps) {
		return fmt.Errorf("%w: %d of %d", ErrStepOutOfRange, index, len(c.Steps))
	}
	c.Steps[index].Completed = completed
	if c.Status != ChallengeLost {
		c.Status = ChallengeActive
		if c.allDone() {
			c.Status = ChallengeCompleted
		}
	}
	c.UpdatedAt = now.UTC()
	return nil
}

func (c *Challenge) allDone() bool {
	for _, s := range c.Steps {
		if !s.Completed {
			return false
		}
	}
	return len(c.Steps) > 0
}

// SetStatus sets the challenge status directly, e.g. marking it lost.
func (c *Challenge) SetStatus(s ChallengeStatus, now time.Time) error {
	if !s.Valid() {
		return fmt.Errorf("invalid challenge status %q", s)
	}
	c.Status = s
	c.UpdatedAt = now.UTC()
	return nil
}
