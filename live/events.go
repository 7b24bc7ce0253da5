package live

import "time"

const (
	EventTournamentStatus = "tournament_status"
	EventMatchStatus      = "match_status"

	MatchStatusFinished = "finished"
)

// Event - конверт, который получают все наблюдатели.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type TournamentStatus struct {
	TournamentID   int       `json:"tournament_id"`
	CurrentPlayers int       `json:"current_players"`
	MaxPlayers     int       `json:"max_players"`
	IsFull         bool      `json:"is_full"`
	Timestamp      time.Time `json:"timestamp"`
}

type MatchStatus struct {
	MatchID   int       `json:"match_id"`
	WinnerID  *int      `json:"winner_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTournamentStatusEvent(tournamentID, currentPlayers, maxPlayers int, at time.Time) Event {
	return Event{
		Type: EventTournamentStatus,
		Payload: TournamentStatus{
			TournamentID:   tournamentID,
			CurrentPlayers: currentPlayers,
			MaxPlayers:     maxPlayers,
			IsFull:         currentPlayers >= maxPlayers,
			Timestamp:      at.UTC(),
		},
	}
}

func NewMatchFinishedEvent(matchID int, winnerID *int, at time.Time) Event {
	return Event{
		Type: EventMatchStatus,
		Payload: MatchStatus{
			MatchID:   matchID,
			WinnerID:  winnerID,
			Status:    MatchStatusFinished,
			Timestamp: at.UTC(),
		},
	}
}
