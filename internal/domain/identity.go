package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// IdentityRecord is a single onboarding submission. Several records may
// exist per email and per source; they are never mutated.
type IdentityRecord struct {
	ID        int64           `json:"id" db:"id"`
	Source    string          `json:"source" db:"-"`
	Email     string          `json:"email" db:"email"`
	FormData  json.RawMessage `json:"form_data" db:"form_data"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

type onboardingForm struct {
	UniqueCode string `json:"uniqueCode"`
}

// UniqueCode extracts the account code from the form data. Malformed or
// non-object form data yields "".
func (r *IdentityRecord) UniqueCode() string {
	if r == nil || len(r.FormData) == 0 {
		return ""
	}

	var form onboardingForm
	if err := json.Unmarshal(r.FormData, &form); err != nil {
		return ""
	}

	return strings.TrimSpace(form.UniqueCode)
}
