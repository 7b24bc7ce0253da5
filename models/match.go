package models

import "time"

type Match struct {
	ID           int        `json:"id" db:"id"`
	TournamentID int        `json:"tournament_id" db:"tournament_id"`
	TableID      int        `json:"table_id" db:"table_id"`
	Player1ID    int        `json:"player1_id" db:"player1_id"`
	Player2ID    int        `json:"player2_id" db:"player2_id"`
	Round        int        `json:"round" db:"round"`
	StartTime    time.Time  `json:"start_time" db:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty" db:"end_time"`
	WinnerID     *int       `json:"winner_id,omitempty" db:"winner_id"`
	IsDraw       bool       `json:"is_draw" db:"is_draw"`
}

// HasParticipant сообщает, является ли пользователь одним из двух игроков матча.
func (m *Match) HasParticipant(userID int) bool {
	return userID == m.Player1ID || userID == m.Player2ID
}

// Finished - у матча зафиксирован исход.
func (m *Match) Finished() bool {
	return m.WinnerID != nil || m.IsDraw
}
