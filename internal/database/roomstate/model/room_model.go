package model

import (
	"fmt"
	"time"
)

// Contribution is one entry of the round currently being written. A timeout
// placeholder carries an empty text and Timeout=true.
type Contribution struct {
	Player  string `json:"player"`
	Text    string `json:"text"`
	Timeout bool   `json:"timeout"`
}

// Room is the persisted state record for one game session. The store is the
// source of truth: no in-process room object survives between operations.
type Room struct {
	Key               string         `json:"key"`
	Players           []string       `json:"players"`
	Scores            map[string]int `json:"scores"`
	CurrentTurnIndex  int            `json:"current_turn_index"`
	CurrentImageIndex int            `json:"current_image_index"`
	TotalImages       int            `json:"total_images"`
	CurrentSentence   []Contribution `json:"current_sentence"`
	GameStarted       bool           `json:"game_started"`
	GameOver          bool           `json:"game_over"`

	// Epoch strictly increases on every turn advance and is the sole
	// authority for deciding whether a pending turn timer is still valid.
	Epoch int64 `json:"epoch"`

	// PromptOrder maps the room's image indexes onto catalog entries,
	// shuffled once at creation.
	PromptOrder []int `json:"prompt_order"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewRoom(key string, totalImages int, promptOrder []int) Room {
	return Room{
		Key:         key,
		Players:     []string{},
		Scores:      map[string]int{},
		TotalImages: totalImages,
		PromptOrder: promptOrder,
	}
}

func (r *Room) HasPlayer(name string) bool {
	for _, p := range r.Players {
		if p == name {
			return true
		}
	}
	return false
}

// CurrentPlayer returns the turn holder, or "" when the game has not started.
func (r *Room) CurrentPlayer() string {
	if !r.GameStarted || r.CurrentTurnIndex < 0 || r.CurrentTurnIndex >= len(r.Players) {
		return ""
	}
	return r.Players[r.CurrentTurnIndex]
}

// RoundComplete reports whether every player contributed to the current round.
func (r *Room) RoundComplete() bool {
	return len(r.Players) > 0 && len(r.CurrentSentence) == len(r.Players)
}

func (r *Room) Finished() bool {
	return r.CurrentImageIndex >= r.TotalImages
}

// Expired reports whether the record outlived its ttl at the given instant.
func (r *Room) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(r.UpdatedAt) > ttl
}

// Validate checks structural invariants before a deserialized record is acted
// on. A record that fails validation is quarantined rather than propagated.
func (r *Room) Validate() error {
	seen := map[string]struct{}{}
	for _, p := range r.Players {
		if p == "" {
			return fmt.Errorf("empty player name")
		}
		if _, ok := seen[p]; ok {
			return fmt.Errorf("duplicate player %q", p)
		}
		seen[p] = struct{}{}
	}

	for name := range r.Scores {
		if _, ok := seen[name]; !ok {
			return fmt.Errorf("score entry %q has no roster entry", name)
		}
	}

	if r.GameStarted && !r.GameOver {
		if r.CurrentTurnIndex < 0 || r.CurrentTurnIndex >= len(r.Players) {
			return fmt.Errorf("turn index %d out of range for %d players", r.CurrentTurnIndex, len(r.Players))
		}
	}

	if r.CurrentImageIndex < 0 || r.CurrentImageIndex > r.TotalImages {
		return fmt.Errorf("image index %d out of range for %d images", r.CurrentImageIndex, r.TotalImages)
	}

	if len(r.CurrentSentence) > len(r.Players) {
		return fmt.Errorf("%d contributions for %d players", len(r.CurrentSentence), len(r.Players))
	}

	if r.Epoch < 0 {
		return fmt.Errorf("negative epoch %d", r.Epoch)
	}

	return nil
}
