package models

import "time"

// ClinicEvent is the read model of a scheduled appointment used by the reminder scheduler.
type ClinicEvent struct {
	Code        string    `json:"eventCode"`
	PatientCode string    `json:"patientCode"`
	StaffCode   string    `json:"staffCode"`
	StartsAt    time.Time `json:"startsAt"`
	Status      string    `json:"status"`
}

const EventStatusConfirmed = "confirmed"
