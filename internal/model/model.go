package model

import "time"

type Account struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

type Assignment struct {
	ID              string
	SubmitterID     string
	Task            string
	AssigneeAdminID string
	Status          string
	CreatedAt       time.Time
	DecidedAt       *time.Time
}

// AssignmentWithSubmitter is an Assignment joined with the username of the
// account that uploaded it, as returned by the admin listing.
type AssignmentWithSubmitter struct {
	Assignment
	SubmitterUsername string
}
