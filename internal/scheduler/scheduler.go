// Package scheduler manages the cron entries behind the daily pushes and
// other recurring jobs. Every user with pushes enabled gets one entry firing
// at their configured HH:MM in the bot timezone.
package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler wraps a cron runner with per-user daily push entries.
type Scheduler struct {
	cron *cron.Cron

	mu      sync.Mutex
	entries map[int64]cron.EntryID
}

// New creates a Scheduler firing in the given location.
func New(loc *time.Location) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		entries: make(map[int64]cron.EntryID),
	}
}

// Start launches the cron runner.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// ScheduleDailyPush registers (or replaces) the user's daily push at
// pushTime, given as HH:MM.
func (s *Scheduler) ScheduleDailyPush(userID int64, pushTime string, task func(userID int64)) error {
	spec, err := pushSpec(pushTime)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[userID]; ok {
		s.cron.Remove(id)
	}
	id, err := s.cron.AddFunc(spec, func() { task(userID) })
	if err != nil {
		return fmt.Errorf("schedule push for user %d: %w", userID, err)
	}
	s.entries[userID] = id
	log.Info().Int64("user_id", userID).Str("push_time", pushTime).Msg("scheduled daily push")
	return nil
}

// RemovePush drops the user's push entry, if any.
func (s *Scheduler) RemovePush(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[userID]; ok {
		s.cron.Remove(id)
		delete(s.entries, userID)
		log.Info().Int64("user_id", userID).Msg("removed daily push")
	}
}

// HasPush reports whether the user currently has a push entry.
func (s *Scheduler) HasPush(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[userID]
	return ok
}

// AddJob registers a fixed job with a standard cron spec, used for jobs that
// are not tied to a user, like the nightly backup.
func (s *Scheduler) AddJob(spec string, task func()) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	if _, err := s.cron.AddFunc(spec, task); err != nil {
		return err
	}
	return nil
}

// pushSpec converts an HH:MM push time into a daily cron spec.
func pushSpec(pushTime string) (string, error) {
	parts := strings.Split(pushTime, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid push time %q: want HH:MM", pushTime)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid push time %q: bad hour", pushTime)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid push time %q: bad minute", pushTime)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
