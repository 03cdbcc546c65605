package storage

import (
	"github.com/tphan267/mirrorcast-signal/pkg/storage/repositories"
	"gorm.io/gorm"
)

// Storage is the database storage interface
type Storage interface {
	// DB returns the underlying GORM database instance
	DB() *gorm.DB

	// EventRepo returns the session event repository
	EventRepo() *repositories.EventRepository

	Close() error
}
