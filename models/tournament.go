package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TournamentStatus представляет статусы турнира.
type TournamentStatus string

const (
	TournamentStatusOpen     TournamentStatus = "open"
	TournamentStatusStarted  TournamentStatus = "started"
	TournamentStatusFinished TournamentStatus = "finished"
	TournamentStatusCanceled TournamentStatus = "canceled"
)

const (
	DefaultMaxPlayers = 32
	MinMaxPlayers     = 2
)

func (s TournamentStatus) Valid() bool {
	switch s {
	case TournamentStatusOpen, TournamentStatusStarted, TournamentStatusFinished, TournamentStatusCanceled:
		return true
	}
	return false
}

// CanTransitionTo проверяет допустимость перехода статуса.
// open -> started -> finished, open/started -> canceled.
func (s TournamentStatus) CanTransitionTo(next TournamentStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case TournamentStatusOpen:
		return next == TournamentStatusStarted || next == TournamentStatusCanceled
	case TournamentStatusStarted:
		return next == TournamentStatusFinished || next == TournamentStatusCanceled
	}
	return false
}

// Tournament представляет турнир.
type Tournament struct {
	ID          int              `json:"id" db:"id"`
	Name        string           `json:"name" db:"name"`
	Format      *string          `json:"format,omitempty" db:"format"`
	ScheduledAt time.Time        `json:"scheduled_at" db:"scheduled_at"`
	EntryFee    decimal.Decimal  `json:"entry_fee" db:"entry_fee"`
	MaxPlayers  int              `json:"max_players" db:"max_players"`
	Status      TournamentStatus `json:"status" db:"status"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
}
