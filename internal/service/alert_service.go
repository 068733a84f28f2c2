package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/GoPolymarket/dexgate/internal/pkg/logger"
	"github.com/GoPolymarket/dexgate/internal/pkg/metrics"
)

// AlertSink is notified of every verdict and gate decision. Notify must not block.
type AlertSink interface {
	Notify(alert *model.Alert)
}

type AlertRepo interface {
	Insert(ctx context.Context, alert *model.Alert) error
	List(ctx context.Context, limit int) ([]*model.Alert, error)
}

// AlertService fans alerts out to a JSONL journal, an optional repo and live subscribers.
type AlertService struct {
	alertChan chan *model.Alert
	logFile   *os.File
	buffer    *alertBuffer
	repo      AlertRepo
	log       *slog.Logger

	mu     sync.RWMutex
	closed bool
	subs   map[int]chan *model.Alert
	nextID int
	done   chan struct{}
}

// NewAlertService opens a daily journal under logDir. An empty logDir disables the journal.
func NewAlertService(logDir string, repo AlertRepo) (*AlertService, error) {
	svc := &AlertService{
		alertChan: make(chan *model.Alert, 1000),
		buffer:    newAlertBuffer(1000),
		repo:      repo,
		log:       logger.Component("alerts"),
		subs:      make(map[int]chan *model.Alert),
		done:      make(chan struct{}),
	}
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, err
		}
		filename := filepath.Join(logDir, "alerts-"+time.Now().Format("2006-01-02")+".jsonl")
		f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		svc.logFile = f
	}

	go svc.processAlerts()
	return svc, nil
}

func (s *AlertService) Notify(alert *model.Alert) {
	if alert == nil {
		return
	}
	s.buffer.Add(alert)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	for _, ch := range s.subs {
		select {
		case ch <- alert:
		default:
		}
	}
	select {
	case s.alertChan <- alert:
	default:
		// the pipeline never waits on alert delivery
		metrics.AlertsDropped.Inc()
		s.log.Warn("Alert buffer full, dropping alert", "alert_id", alert.ID, "token", alert.TokenID)
	}
}

// Recent returns the newest alerts from memory, newest first.
func (s *AlertService) Recent(limit int) []*model.Alert {
	return s.buffer.List(limit)
}

// List prefers the repo and falls back to the in-memory ring.
func (s *AlertService) List(ctx context.Context, limit int) ([]*model.Alert, error) {
	if s.repo != nil {
		records, err := s.repo.List(ctx, limit)
		if err == nil {
			return records, nil
		}
		s.log.Warn("Alert repo list failed, serving from memory", "error", err)
	}
	return s.buffer.List(limit), nil
}

// Subscribe registers a live listener. Slow listeners miss alerts rather than block Notify.
func (s *AlertService) Subscribe(buffer int) (<-chan *model.Alert, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan *model.Alert, buffer)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
		})
	}
}

func (s *AlertService) processAlerts() {
	defer close(s.done)
	var encoder *json.Encoder
	if s.logFile != nil {
		encoder = json.NewEncoder(s.logFile)
	}
	for alert := range s.alertChan {
		if s.repo != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.repo.Insert(ctx, alert); err != nil {
				s.log.Error("Failed to persist alert", "alert_id", alert.ID, "error", err)
			}
			cancel()
		}
		if encoder != nil {
			if err := encoder.Encode(alert); err != nil {
				s.log.Error("Failed to write alert journal", "error", err)
			}
		}
	}
}

// Close flushes queued alerts and releases subscribers. Safe to call more than once.
func (s *AlertService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	close(s.alertChan)
	s.mu.Unlock()

	<-s.done
	if s.logFile != nil {
		s.logFile.Close()
	}
}

type alertBuffer struct {
	mu        sync.Mutex
	maxSize   int
	records   []*model.Alert
	nextIndex int
}

func newAlertBuffer(maxSize int) *alertBuffer {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &alertBuffer{
		maxSize: maxSize,
		records: make([]*model.Alert, 0, maxSize),
	}
}

func (b *alertBuffer) Add(entry *model.Alert) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, entry)
		return
	}
	b.records[b.nextIndex] = entry
	b.nextIndex = (b.nextIndex + 1) % b.maxSize
}

func (b *alertBuffer) List(limit int) []*model.Alert {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > b.maxSize {
		limit = b.maxSize
	}
	total := len(b.records)
	results := make([]*model.Alert, 0, min(limit, total))
	start := b.nextIndex
	if total < b.maxSize {
		start = total
	}
	for i := 0; i < total && len(results) < limit; i++ {
		idx := (start - 1 - i + total) % total
		if entry := b.records[idx]; entry != nil {
			results = append(results, entry)
		}
	}
	return results
}
