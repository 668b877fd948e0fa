package repository

import (
	"github.com/prperemyshlev/wearable-sync/pkg/database"
)

// Repositories holds all repository interfaces
type Repositories struct {
	Onboarding   []OnboardingRepository
	Credential   CredentialRepository
	Sync         SyncRepository
	Subscription SubscriptionRepository
}

// NewRepositories creates all repositories. onboardingSources are table
// names in precedence order.
func NewRepositories(db *database.Postgres, onboardingSources []string) *Repositories {
	onboarding := make([]OnboardingRepository, 0, len(onboardingSources))
	for _, table := range onboardingSources {
		onboarding = append(onboarding, NewOnboardingRepository(db, table))
	}

	return &Repositories{
		Onboarding:   onboarding,
		Credential:   NewCredentialRepository(db),
		Sync:         NewSyncRepository(db),
		Subscription: NewSubscriptionRepository(db),
	}
}
