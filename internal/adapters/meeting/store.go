package meeting

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Repository is the persistence surface the meeting adapters need.
type Repository interface {
	FindMeeting(ctx context.Context, ref string) (*Meeting, error)
	SaveMeeting(ctx context.Context, m *Meeting) error
	SaveSummary(ctx context.Context, rec *SummaryRecord) error
}

func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("gorm: open mysql: %w", err)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Meeting{}, &SummaryRecord{}); err != nil {
		return fmt.Errorf("gorm: migrate: %w", err)
	}
	return nil
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRepository")
	}
	return &GormRepository{db: db}
}

func (r *GormRepository) FindMeeting(ctx context.Context, ref string) (*Meeting, error) {
	var m Meeting
	err := r.db.WithContext(ctx).Where("ref = ?", ref).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMeetingNotFound
		}
		return nil, fmt.Errorf("gorm: find meeting %q: %w", ref, err)
	}
	return &m, nil
}

func (r *GormRepository) SaveMeeting(ctx context.Context, m *Meeting) error {
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return fmt.Errorf("gorm: save meeting %q: %w", m.Ref, err)
	}
	return nil
}

func (r *GormRepository) SaveSummary(ctx context.Context, rec *SummaryRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("gorm: save summary for room %s: %w", rec.RoomID, err)
	}
	return nil
}

// Store answers join checks and records room summaries.
type Store struct {
	repo Repository
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

// CanJoin admits ad-hoc rooms (empty ref) and known, unlocked meetings whose
// password matches.
func (s *Store) CanJoin(ctx context.Context, meetingRef, password string) (core.Admission, error) {
	if meetingRef == "" {
		return core.Admission{Allowed: true}, nil
	}
	m, err := s.repo.FindMeeting(ctx, meetingRef)
	if errors.Is(err, ErrMeetingNotFound) {
		return core.Admission{Reason: "unknown meeting"}, nil
	}
	if err != nil {
		return core.Admission{}, err
	}
	if m.Locked {
		return core.Admission{Reason: "meeting is locked"}, nil
	}
	if m.PasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)); err != nil {
			return core.Admission{Reason: "wrong password"}, nil
		}
	}
	return core.Admission{Allowed: true, Capacity: m.Capacity}, nil
}

// CreateMeeting stores a meeting, hashing its password when one is given.
// Saving an existing ref overwrites it.
func (s *Store) CreateMeeting(ctx context.Context, mt config.Meeting) (*Meeting, error) {
	if _, err := domain.ParseRoomID(mt.Ref); err != nil {
		return nil, err
	}
	m := &Meeting{Ref: mt.Ref, Title: mt.Title, Capacity: mt.Capacity, Locked: mt.Locked}
	if mt.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(mt.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash meeting password: %w", err)
		}
		m.PasswordHash = string(hash)
	}
	if err := s.repo.SaveMeeting(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Seed writes the configured meetings.
func (s *Store) Seed(ctx context.Context, meetings []config.Meeting) error {
	for _, mt := range meetings {
		if _, err := s.CreateMeeting(ctx, mt); err != nil {
			return fmt.Errorf("seed meeting %q: %w", mt.Ref, err)
		}
	}
	log.Info().Str("module", "meeting").Int("count", len(meetings)).Msg("meetings seeded")
	return nil
}

// Handoff writes the summary synchronously. Used when no queue is configured
// and by the queue worker.
func (s *Store) Handoff(ctx context.Context, summary domain.RoomSummary) error {
	rec, err := newSummaryRecord(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := s.repo.SaveSummary(ctx, rec); err != nil {
		return err
	}
	log.Info().Str("module", "meeting").Str("room", rec.RoomID).Str("meeting", rec.MeetingRef).Int("participants", rec.ParticipantCount).Msg("summary stored")
	return nil
}
