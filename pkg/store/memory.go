package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/autoscalehub/autoscale/pkg/apperr"
	"github.com/autoscalehub/autoscale/pkg/model"
)

// MemStore is an in-memory Store used by the ingest, registry, and worker
// tests. It is safe for concurrent use.
type MemStore struct {
	mu sync.Mutex

	devices    []model.Device
	events     []model.Event
	jobs       []model.Job
	results    []model.Result
	nextID     int64
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemStore) UpsertDevice(_ context.Context, deviceID, householdID, displayName string) (model.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, d := range s.devices {
		if d.DeviceID == deviceID {
			if householdID != "" {
				s.devices[i].HouseholdID = householdID
			}
			if displayName != "" {
				s.devices[i].DisplayName = displayName
			}
			return s.devices[i], nil
		}
	}
	d := model.Device{
		ID:          s.id(),
		DeviceID:    deviceID,
		HouseholdID: householdID,
		DisplayName: displayName,
		CreatedAt:   time.Now(),
	}
	s.devices = append(s.devices, d)
	return d, nil
}

func (s *MemStore) GetDeviceByDeviceID(_ context.Context, deviceID string) (model.Device, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.devices {
		if d.DeviceID == deviceID {
			return d, true, nil
		}
	}
	return model.Device{}, false, nil
}

func (s *MemStore) InsertEvent(_ context.Context, e model.Event) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = s.id()
	e.CreatedAt = time.Now()
	s.events = append(s.events, e)
	return e, nil
}

func (s *MemStore) GetEvent(_ context.Context, id int64) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.events {
		if e.ID == id {
			return e, nil
		}
	}
	return model.Event{}, apperr.NotFound("event %d not found", id)
}

func (s *MemStore) EnqueueJob(_ context.Context, eventID int64) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := model.Job{
		ID:        s.id(),
		EventID:   eventID,
		Status:    model.JobPending,
		CreatedAt: time.Now(),
	}
	s.jobs = append(s.jobs, j)
	return j, nil
}

// ClaimPendingJobs mimics the single conditional-update claim of PGStore:
// under the lock, it atomically flips the oldest batch pending jobs to
// processing and returns copies, so the caller cannot observe a
// read-then-write race even in a single process.
func (s *MemStore) ClaimPendingJobs(_ context.Context, batch int) ([]model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pendingIdx []int
	for i, j := range s.jobs {
		if j.Status == model.JobPending {
			pendingIdx = append(pendingIdx, i)
		}
	}
	sort.Slice(pendingIdx, func(a, b int) bool {
		return s.jobs[pendingIdx[a]].CreatedAt.Before(s.jobs[pendingIdx[b]].CreatedAt)
	})

	var claimed []model.Job
	now := time.Now()
	for _, idx := range pendingIdx {
		if len(claimed) >= batch {
			break
		}
		s.jobs[idx].Status = model.JobProcessing
		s.jobs[idx].PickedAt = &now
		s.jobs[idx].Attempts++
		claimed = append(claimed, s.jobs[idx])
	}
	return claimed, nil
}

func (s *MemStore) MarkJobDone(_ context.Context, jobID int64, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for i, j := range s.jobs {
		if j.ID == jobID {
			s.jobs[i].Status = model.JobDone
			s.jobs[i].DoneAt = &now
			s.jobs[i].Error = errMsg
			return nil
		}
	}
	return apperr.NotFound("job %d not found", jobID)
}

func (s *MemStore) MarkJobFailed(_ context.Context, jobID int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for i, j := range s.jobs {
		if j.ID == jobID {
			s.jobs[i].Status = model.JobFailed
			s.jobs[i].DoneAt = &now
			s.jobs[i].Error = &errMsg
			return nil
		}
	}
	return apperr.NotFound("job %d not found", jobID)
}

func (s *MemStore) InsertResult(_ context.Context, r model.Result) (model.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = s.id()
	r.ComputedAt = time.Now()
	s.results = append(s.results, r)
	return r, nil
}

func (s *MemStore) RecentRawWeights(_ context.Context, deviceID string, limit int) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	eventIDs := make(map[int64]bool)
	for _, e := range s.events {
		if e.DeviceID == deviceID {
			eventIDs[e.ID] = true
		}
	}

	type scored struct {
		weight     float64
		computedAt time.Time
	}
	var candidates []scored
	for _, r := range s.results {
		if eventIDs[r.EventID] {
			candidates = append(candidates, scored{r.Raw.Weight, r.ComputedAt})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].computedAt.After(candidates[j].computedAt) })

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]float64, len(candidates))
	for i, c := range candidates {
		out[i] = c.weight
	}
	return out, nil
}

var _ Store = (*MemStore)(nil)
var _ Store = (*PGStore)(nil)
