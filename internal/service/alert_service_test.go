package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertServiceRecentAndJournal(t *testing.T) {
	dir := t.TempDir()
	svc, err := NewAlertService(dir, nil)
	require.NoError(t, err)

	for _, id := range []string{"a1", "a2", "a3"} {
		svc.Notify(&model.Alert{ID: id, Kind: model.AlertVerdict, Message: id})
	}
	recent := svc.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "a3", recent[0].ID)
	assert.Equal(t, "a2", recent[1].ID)

	svc.Close()
	svc.Close()

	files, err := filepath.Glob(filepath.Join(dir, "alerts-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	raw, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(raw), "\n"))
}

func TestAlertServiceSubscribe(t *testing.T) {
	svc, err := NewAlertService("", nil)
	require.NoError(t, err)
	defer svc.Close()

	ch, unsubscribe := svc.Subscribe(4)
	svc.Notify(&model.Alert{ID: "x"})

	select {
	case a := <-ch:
		assert.Equal(t, "x", a.ID)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive alert")
	}
	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
}

type memAlertRepo struct {
	inserted chan *model.Alert
}

func (m *memAlertRepo) Insert(_ context.Context, a *model.Alert) error {
	m.inserted <- a
	return nil
}

func (m *memAlertRepo) List(context.Context, int) ([]*model.Alert, error) {
	return []*model.Alert{{ID: "from-repo"}}, nil
}

func TestAlertServicePersistsToRepo(t *testing.T) {
	repo := &memAlertRepo{inserted: make(chan *model.Alert, 1)}
	svc, err := NewAlertService("", repo)
	require.NoError(t, err)
	defer svc.Close()

	svc.Notify(&model.Alert{ID: "p"})
	select {
	case a := <-repo.inserted:
		assert.Equal(t, "p", a.ID)
	case <-time.After(time.Second):
		t.Fatal("alert not persisted")
	}
	list, err := svc.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "from-repo", list[0].ID)
}

func TestMemoryLedgerWraps(t *testing.T) {
	l := NewMemoryLedger(2)
	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, l.Record(context.Background(), model.TradeRecord{RequestID: id}))
	}
	out, err := l.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "r3", out[0].RequestID)
	assert.Equal(t, "r2", out[1].RequestID)
}
