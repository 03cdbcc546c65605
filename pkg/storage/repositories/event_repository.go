package repositories

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tphan267/mirrorcast-signal/pkg/models"
	"gorm.io/gorm"
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) (*EventRepository, error) {
	if err := db.AutoMigrate(&models.SessionEvent{}); err != nil {
		return nil, fmt.Errorf("failed to migrate session events: %w", err)
	}
	return &EventRepository{db: db}, nil
}

// Create stores one event, assigning an id and timestamp when missing
func (r *EventRepository) Create(ev *models.SessionEvent) error {
	if ev.Kind == "" {
		return fmt.Errorf("event kind cannot be empty")
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	return r.db.Create(ev).Error
}

// CreateBatch stores events in a single transaction
func (r *EventRepository) CreateBatch(events []*models.SessionEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, ev := range events {
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = time.Now()
		}
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&events).Error
	})
}

// CountByKind returns the number of events per kind created at or after
// since. A zero since counts everything.
func (r *EventRepository) CountByKind(since time.Time) (map[string]int64, error) {
	query := r.db.Model(&models.SessionEvent{})
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}

	var rows []models.KindCount
	if err := query.
		Select("kind, count(*) as count").
		Group("kind").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Kind] = row.Count
	}
	return counts, nil
}

// CountRooms returns the number of distinct rooms that saw an event of kind
func (r *EventRepository) CountRooms(kind string) (int64, error) {
	var count int64
	if err := r.db.Model(&models.SessionEvent{}).
		Where("kind = ?", kind).
		Distinct("room_id").
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Recent returns the latest events, newest first
func (r *EventRepository) Recent(limit int) ([]*models.SessionEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []*models.SessionEvent
	if err := r.db.Order("created_at desc").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// ByRoom returns the history of a room, oldest first
func (r *EventRepository) ByRoom(roomID string) ([]*models.SessionEvent, error) {
	var events []*models.SessionEvent
	if err := r.db.Where("room_id = ?", roomID).Order("created_at").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// DeleteBefore removes events older than t and returns how many were removed
func (r *EventRepository) DeleteBefore(t time.Time) (int64, error) {
	res := r.db.Where("created_at < ?", t).Delete(&models.SessionEvent{})
	return res.RowsAffected, res.Error
}

func (r *EventRepository) Count() (int64, error) {
	var count int64
	if err := r.db.Model(&models.SessionEvent{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
