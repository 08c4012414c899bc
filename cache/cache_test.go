package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/use-agent/uicheck/models"
)

func run(id, status string) models.RunStatusResponse {
	return models.RunStatusResponse{ID: id, Status: status, Scenarios: 1}
}

func TestPutGetUpdate(t *testing.T) {
	s := New(10, time.Hour)
	defer s.Close()

	s.Put(run("a", models.RunStateRunning))
	ok := s.Update("a", func(r *models.RunStatusResponse) {
		r.Status = models.RunStateCompleted
		r.Report = &models.Report{RunID: "a"}
	})
	if !ok {
		t.Fatal("Update reported missing run")
	}
	got, ok := s.Get("a")
	if !ok || got.Status != models.RunStateCompleted || got.Report == nil {
		t.Errorf("Get = %+v, %v", got, ok)
	}
	if s.Update("zzz", func(*models.RunStatusResponse) {}) {
		t.Error("Update of unknown id succeeded")
	}
}

func TestEvictionPrefersFinishedRuns(t *testing.T) {
	s := New(2, time.Hour)
	defer s.Close()

	s.Put(run("running", models.RunStateRunning))
	time.Sleep(2 * time.Millisecond)
	s.Put(run("done", models.RunStateCompleted))
	s.Put(run("new", models.RunStateRunning))

	if _, ok := s.Get("done"); ok {
		t.Error("finished run survived eviction")
	}
	if _, ok := s.Get("running"); !ok {
		t.Error("running run evicted")
	}
	if s.Len() != 2 {
		t.Errorf("len = %d", s.Len())
	}
}

func TestExpiry(t *testing.T) {
	s := New(10, 20*time.Millisecond)
	defer s.Close()

	s.Put(run("old", models.RunStateCompleted))
	s.Put(run("busy", models.RunStateRunning))
	time.Sleep(30 * time.Millisecond)

	if _, ok := s.Get("old"); ok {
		t.Error("expired run returned")
	}
	if got, ok := s.Get("busy"); !ok || got.Status != models.RunStateRunning {
		t.Errorf("running run hidden after ttl: %+v, %v", got, ok)
	}
	if n := s.evictExpired(time.Now().Add(-s.ttl)); n != 1 {
		t.Errorf("evicted %d, want 1", n)
	}
	if s.Len() != 1 {
		t.Errorf("len = %d, want running run kept", s.Len())
	}
}

func TestConcurrentGetUpdate(t *testing.T) {
	s := New(10, time.Hour)
	defer s.Close()
	s.Put(run("a", models.RunStateRunning))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 1000 {
			s.Update("a", func(r *models.RunStatusResponse) {
				r.Error = &models.ErrorDetail{Message: fmt.Sprint(i)}
			})
		}
	}()
	go func() {
		defer wg.Done()
		for range 1000 {
			if _, ok := s.Get("a"); !ok {
				t.Error("run missing")
				return
			}
		}
	}()
	wg.Wait()
}
