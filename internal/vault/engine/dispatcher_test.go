package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d := NewDispatcher(newTestEngine(t))
	t.Cleanup(func() { _ = d.Close() })

	_, err := d.Init(context.Background(), "correct horse battery")
	require.NoError(t, err)
	return d
}

func TestDispatcher_SerializesConcurrentSaves(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	// Concurrent saves to one file must serialize into consecutive
	// versions with no collisions.
	const writers = 8
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := d.Save(ctx, "shared.md", []byte(fmt.Sprintf("body %d", i)), "", SaveOptions{})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := d.Load(ctx, "shared.md", nil, true)
	require.NoError(t, err)
	require.EqualValues(t, writers, got.CurrentVersion)
	require.EqualValues(t, 1, got.AvailableVersions.Min)
}

func TestDispatcher_LoadAfterSaveSeesSavedVersion(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	res, err := d.Save(ctx, "a.md", []byte("payload"), "", SaveOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Version)

	got, err := d.Load(ctx, "a.md", nil, false)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got.Data)
}

func TestDispatcher_ProgressEvents(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	_, err := d.Save(ctx, "a.md", []byte("x"), "", SaveOptions{})
	require.NoError(t, err)

	_, err = d.ExportZip(ctx, "op-42")
	require.NoError(t, err)

	// The export of one file emits at least start and finish events.
	var events []ProgressEvent
	for len(d.Events()) > 0 {
		events = append(events, <-d.Events())
	}
	require.NotEmpty(t, events)
	for _, ev := range events {
		require.Equal(t, "op-42", ev.OperationID)
		require.Equal(t, 1, ev.Total)
	}
	last := events[len(events)-1]
	require.Equal(t, 1, last.Completed)
}

func TestDispatcher_ClosedRejectsRequests(t *testing.T) {
	d := NewDispatcher(newTestEngine(t))
	require.NoError(t, d.Close())

	_, err := d.Files(context.Background())
	require.ErrorIs(t, err, ErrDispatcherClosed)
}
