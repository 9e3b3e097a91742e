package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/fulfillment_backend/config"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReservationSweeper expires lapsed reservations in the background.
// A redislock keeps one sweeper active across instances; each expiry runs in
// its own transaction so a crash mid-batch loses nothing.
type ReservationSweeper struct {
	DB     *gorm.DB
	Logger *logrus.Logger

	BatchSize    int
	PollInterval time.Duration
	LockTTL      time.Duration
}

func NewReservationSweeper(db *gorm.DB, logger *logrus.Logger) *ReservationSweeper {
	return &ReservationSweeper{
		DB:           db,
		Logger:       logger,
		BatchSize:    100,
		PollInterval: 30 * time.Second,
		LockTTL:      time.Minute,
	}
}

func (s *ReservationSweeper) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.sweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.PollInterval):
		}
	}
}

func (s *ReservationSweeper) sweepOnce(ctx context.Context) {
	locker := config.GetRedisLock()
	if locker != nil {
		lock, err := locker.Obtain(ctx, "sweeper:reservations", s.LockTTL, nil)
		if err == redislock.ErrNotObtained {
			// another instance is sweeping
			return
		}
		if err != nil {
			config.LogError(s.Logger, moduleName, "sweepOnce", "failed to obtain sweeper lock", nil, err)
			return
		}
		defer func() {
			_ = lock.Release(ctx)
		}()
	}

	if _, err := s.SweepExpired(ctx); err != nil {
		config.LogError(s.Logger, moduleName, "sweepOnce", "sweep failed", nil, err)
	}
}

// SweepExpired releases every currently-lapsed reservation and reports how
// many actually flipped to expired.
func (s *ReservationSweeper) SweepExpired(ctx context.Context) (int, error) {
	candidates, err := FindExpired(ctx, s.DB, time.Now().UTC(), s.BatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, reservation := range candidates {
		status, err := ReleaseExpiredById(ctx, s.DB, reservation.ID)
		if err != nil {
			config.LogError(s.Logger, moduleName, "SweepExpired", "failed to expire reservation", map[string]interface{}{
				"reservation_id": reservation.ID,
			}, err)
			continue
		}
		if status == ExpireStatusExpired {
			expired++
		}
	}
	return expired, nil
}
