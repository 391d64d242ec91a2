package session

import "time"

// DefaultMaxAge is how long a session may run before it needs confirmation.
const DefaultMaxAge = 24 * time.Hour

// ValidationResult classifies the age of a session.
type ValidationResult struct {
	AgeHours  float64 `json:"age_hours"`
	IsValid   bool    `json:"is_valid"`
	IsExpired bool    `json:"is_expired"`
}

// Validator checks session ages against MaxAge. The zero value uses
// DefaultMaxAge.
type Validator struct {
	MaxAge time.Duration
}

// Validate classifies a session started at startedAt. A negative age, from
// clock skew or a tampered start time, is neither valid nor expired.
func (v Validator) Validate(startedAt, now time.Time) ValidationResult {
	maxAge := v.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	age := now.Sub(startedAt).Hours()
	limit := maxAge.Hours()

	return ValidationResult{
		AgeHours:  age,
		IsValid:   age >= 0 && age <= limit,
		IsExpired: age > limit,
	}
}

// Validate classifies startedAt against DefaultMaxAge.
func Validate(startedAt, now time.Time) ValidationResult {
	return Validator{}.Validate(startedAt, now)
}
