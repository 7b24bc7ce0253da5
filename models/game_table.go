package models

const GameTableStatusAvailable = "available"

type GameTable struct {
	ID           int     `json:"id" db:"id"`
	TableNumber  int     `json:"table_number" db:"table_number"`
	LocationInfo *string `json:"location_info,omitempty" db:"location_info"`
	Status       string  `json:"status" db:"status"`
}
