package repository

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// NewRepositories creates all repository instances on top of a gorm database
func NewRepositories(db *gorm.DB) *Repositories {
	repos := &Repositories{
		Plan:         NewPlanRepository(db),
		Invoice:      NewInvoiceRepository(db),
		Organization: NewOrganizationRepository(db),
		Admin:        NewAdminRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
	}
	return repos.WithTransactions(func(ctx context.Context, fn func(context.Context, *Repositories) error) error {
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(ctx, NewRepositories(tx))
		})
	})
}

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	build func() *Repositories
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory backed by gorm
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		build: func() *Repositories { return NewRepositories(db) },
	}
}

// NewFactoryFor wraps an already built repository set, e.g. the mongo store
func NewFactoryFor(repos *Repositories) *Factory {
	return &Factory{
		build: func() *Repositories { return repos },
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = f.build()
	})
	return f.repos
}

// GetPlanRepository returns the plan repository instance
func (f *Factory) GetPlanRepository() PlanRepository {
	return f.GetRepositories().Plan
}

// GetInvoiceRepository returns the invoice repository instance
func (f *Factory) GetInvoiceRepository() InvoiceRepository {
	return f.GetRepositories().Invoice
}

// GetOrganizationRepository returns the organization repository instance
func (f *Factory) GetOrganizationRepository() OrganizationRepository {
	return f.GetRepositories().Organization
}

// Global factory instance
var globalFactory *Factory
var factoryOnce sync.Once

// InitializeFactory initializes the global repository factory
func InitializeFactory(f *Factory) {
	factoryOnce.Do(func() {
		globalFactory = f
	})
}

// GetGlobalFactory returns the global repository factory instance
func GetGlobalFactory() *Factory {
	if globalFactory == nil {
		panic("Repository factory not initialized. Call InitializeFactory first.")
	}
	return globalFactory
}

// GetGlobalRepositories returns the global repositories instance
func GetGlobalRepositories() *Repositories {
	return GetGlobalFactory().GetRepositories()
}
