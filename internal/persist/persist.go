package persist

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/arcadelab/pong-backend/internal/engine"
	"github.com/arcadelab/pong-backend/internal/types"
)

// ParticipantResult is one participant's row in a finished match.
type ParticipantResult struct {
	ParticipantID string
	UserID        *int64
	Slot          int
	Team          engine.Team
	Score         int
	Won           bool
	Forfeited     bool
}

// Summary is what a session hands off when it ends. Delivery is
// fire-and-forget: durability and retries are the saver's problem.
type Summary struct {
	SessionID    uint64
	Type         types.SessionType
	Winner       engine.Team
	Forfeit      bool
	Score        map[engine.Team]int
	Participants []ParticipantResult
	StartedAt    time.Time
	EndedAt      time.Time
}

type Saver interface {
	Save(Summary)
}

// NopSaver is used when no database is configured.
type NopSaver struct{}

func (NopSaver) Save(Summary) {}

// MatchResult is the persisted row, one per participant per match.
type MatchResult struct {
	ID            uint64 `gorm:"primaryKey"`
	SessionID     uint64 `gorm:"index"`
	SessionType   string
	ParticipantID string
	UserID        *int64 `gorm:"index"`
	Slot          int
	Team          string
	Score         int
	OpponentScore int
	Won           bool
	Forfeited     bool
	StartedAt     time.Time
	EndedAt       time.Time
	CreatedAt     time.Time
}

type GormSaver struct {
	db  *gorm.DB
	log *zap.Logger
}

func OpenGorm(dsn string, log *zap.Logger) (*GormSaver, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&MatchResult{}); err != nil {
		return nil, err
	}
	return &GormSaver{db: db, log: log}, nil
}

func (s *GormSaver) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save inserts asynchronously so a slow database never blocks a
// session's end path.
func (s *GormSaver) Save(sum Summary) {
	rows := make([]MatchResult, 0, len(sum.Participants))
	for _, p := range sum.Participants {
		rows = append(rows, MatchResult{
			SessionID:     sum.SessionID,
			SessionType:   string(sum.Type),
			ParticipantID: p.ParticipantID,
			UserID:        p.UserID,
			Slot:          p.Slot,
			Team:          string(p.Team),
			Score:         sum.Score[p.Team],
			OpponentScore: sum.Score[p.Team.Opponent()],
			Won:           p.Won,
			Forfeited:     p.Forfeited,
			StartedAt:     sum.StartedAt,
			EndedAt:       sum.EndedAt,
		})
	}
	go func() {
		if err := s.db.Create(&rows).Error; err != nil {
			s.log.Warn("match result insert failed",
				zap.Uint64("session_id", sum.SessionID), zap.Error(err))
		}
	}()
}
