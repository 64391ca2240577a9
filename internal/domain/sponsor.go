package domain

import "time"

// Account represents a sponsoring GitHub account (user or organization)
type Account struct {
	Name           string `json:"name"`
	Image          string `json:"image"`
	URL            string `json:"url"`
	IsOrganization bool   `json:"org"`
}

// Sponsor represents a recurring sponsorship as of fetch time
type Sponsor struct {
	Account       Account
	IsPrivate     bool
	CreatedAt     time.Time
	MonthlyAmount int
}

// Numbers holds the aggregate sponsorship figures
type Numbers struct {
	Total int `json:"total"`
	Count int `json:"count"`
}
