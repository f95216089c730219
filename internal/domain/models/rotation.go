package models

import "time"

// SectorRotation describes sentiment leaving FromSector while ToSector gains.
type SectorRotation struct {
	ID                    string    `json:"id"`
	FromSector            string    `json:"from_sector"`
	ToSector              string    `json:"to_sector"`
	Timestamp             time.Time `json:"timestamp"`
	Strength              float64   `json:"strength"`
	DurationHoursEstimate float64   `json:"duration_hours_estimate"`
	Assets                []string  `json:"assets"`
}
