package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory builds the repositories for one database handle on first use.
type Factory struct {
	db    *gorm.DB
	once  sync.Once
	repos *Repositories
}

func NewFactory(db *gorm.DB) *Factory {
	return &Factory{db: db}
}

func (f *Factory) Repositories() *Repositories {
	f.once.Do(func() { f.repos = NewRepositories(f.db) })
	return f.repos
}

func (f *Factory) GetAccountRepository() AccountRepository {
	return f.Repositories().Account
}

var (
	globalFactory *Factory
	factoryOnce   sync.Once
)

// InitializeFactory sets up the process wide factory. Later calls are ignored.
func InitializeFactory(db *gorm.DB) {
	factoryOnce.Do(func() { globalFactory = NewFactory(db) })
}

// GetGlobalFactory panics when InitializeFactory has not run, which is a startup ordering bug.
func GetGlobalFactory() *Factory {
	if globalFactory == nil {
		panic("repository: InitializeFactory must be called before GetGlobalFactory")
	}
	return globalFactory
}
