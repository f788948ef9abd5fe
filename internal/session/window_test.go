package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consumption-tracker/internal/inventory"
	"consumption-tracker/internal/models"
)

func brands(items []models.ConsumptionItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Brand
	}
	return out
}

func TestWindow_LoadBuildsScopedCopy(t *testing.T) {
	p := newFakeProvider()
	_, w := loadedWindow(t, p, newFakeClock(), testConfig())

	snap := w.Snapshot()
	require.True(t, snap.Loaded)
	assert.Equal(t, []string{"House Red", "Prosecco", "IPA", "Kombucha"}, brands(snap.Items),
		"configured category order, then brand, unknown categories last")

	for _, item := range snap.Items {
		assert.Equal(t, w.ID(), item.Key.WindowID)
		assert.True(t, item.Quantity.IsZero())
	}
	assert.Equal(t, []string{inventory.DefaultSourceKey}, p.snapshotKeys)

	require.NoError(t, w.Load(context.Background()))
	assert.Len(t, p.snapshotKeys, 1, "a loaded window never reloads")
}

func TestWindow_HalfStepCategories(t *testing.T) {
	p := newFakeProvider()
	cfg := testConfig()
	cfg.HalfStepCategories = []string{"Beer"}
	_, w := loadedWindow(t, p, newFakeClock(), cfg)
	ctx := context.Background()

	ipa, err := w.UpdateQuantity(ctx, "ipa", OpIncrement)
	require.NoError(t, err)
	assert.Equal(t, "0.5", ipa.Quantity.String())

	red, err := w.UpdateQuantity(ctx, "red", OpIncrement)
	require.NoError(t, err)
	assert.Equal(t, "1", red.Quantity.String())
}

func TestWindow_LoadUsesSheetTarget(t *testing.T) {
	p := newFakeProvider()
	loadedWindow(t, p, newFakeClock(), syncedConfig())
	assert.Equal(t, []string{"sheet-1"}, p.snapshotKeys)
}

func TestWindow_EmptySnapshotWarns(t *testing.T) {
	p := newFakeProvider()
	p.snapshot = nil
	clock := newFakeClock()
	_, w := loadedWindow(t, p, clock, testConfig())

	snap := w.Snapshot()
	assert.True(t, snap.Loaded)
	assert.Empty(t, snap.Items)

	notice := w.Notice()
	require.NotNil(t, notice)
	assert.Equal(t, models.NoticeWarning, notice.Kind)

	clock.Advance(time.Minute)
	assert.NotNil(t, w.Notice(), "the warning stays until dismissed")
}

func TestWindow_LoadFailureStaysInWindow(t *testing.T) {
	p := newFakeProvider()
	p.snapshotErr = errRemote
	m := NewManager(testDeps(p, newFakeClock()))
	w, err := m.Create(testConfig())
	require.NoError(t, err)

	_, err = m.Activate(context.Background(), w.ID())
	assert.ErrorIs(t, err, inventory.ErrDataUnavailable)
	assert.ErrorIs(t, err, errRemote)

	notice := w.Notice()
	require.NotNil(t, notice)
	assert.Equal(t, models.NoticeError, notice.Kind)
	assert.Equal(t, w.ID(), m.Active().ID(), "window stays selected")
}

func TestWindow_IncrementThenDecrement(t *testing.T) {
	p := newFakeProvider()
	clock := newFakeClock()
	m := NewManager(testDeps(p, clock))
	ctx := context.Background()

	w1, err := m.Create(testConfig())
	require.NoError(t, err)
	w2, err := m.Create(testConfig())
	require.NoError(t, err)
	for _, w := range []*Window{w1, w2} {
		_, err := m.Activate(ctx, w.ID())
		require.NoError(t, err)
	}

	for range 3 {
		_, err := w1.UpdateQuantity(ctx, "red", OpIncrement)
		require.NoError(t, err)
	}
	item, err := w1.UpdateQuantity(ctx, "red", OpDecrement)
	require.NoError(t, err)

	assert.Equal(t, "2", item.Quantity.String())
	assert.Equal(t, clock.Now(), item.LastUpdated)

	other, ok := w2.Item("red")
	require.True(t, ok)
	assert.True(t, other.Quantity.IsZero(), "windows never share item state")
	assert.NotEqual(t, item.Key, other.Key)
	assert.Empty(t, p.pushes, "no sheet connection, nothing pushed")
}

func TestWindow_UpdateQuantityEdgeCases(t *testing.T) {
	p := newFakeProvider()
	_, w := loadedWindow(t, p, newFakeClock(), syncedConfig())
	ctx := context.Background()

	item, err := w.UpdateQuantity(ctx, "ipa", OpSet("lots"))
	require.NoError(t, err, "non-numeric input is ignored")
	assert.True(t, item.Quantity.IsZero())

	_, err = w.UpdateQuantity(ctx, "ipa", OpDecrement)
	require.NoError(t, err)

	_, err = w.UpdateQuantity(ctx, "missing", OpIncrement)
	assert.ErrorIs(t, err, ErrItemNotFound)

	assert.Empty(t, p.pushes, "unchanged values are never pushed")
	assert.Empty(t, p.events)
}

func TestWindow_UpdateQuantityIgnoresExponentInput(t *testing.T) {
	p := newFakeProvider()
	_, w := loadedWindow(t, p, newFakeClock(), syncedConfig())
	ctx := context.Background()

	for _, input := range []string{"1e20000000", "1e-2000000", "1e999999999"} {
		item, err := w.UpdateQuantity(ctx, "ipa", OpSet(input))
		require.NoError(t, err)
		assert.True(t, item.Quantity.IsZero(), input)
	}

	assert.False(t, w.Dirty())
	assert.Empty(t, p.pushes)
}

func TestWindow_PushSuccess(t *testing.T) {
	p := newFakeProvider()
	clock := newFakeClock()
	_, w := loadedWindow(t, p, clock, syncedConfig())

	item, err := w.UpdateQuantity(context.Background(), "pro", OpSet("4.5"))
	require.NoError(t, err)
	assert.Equal(t, "4.5", item.Quantity.String())
	assert.False(t, item.Pending)

	require.Len(t, p.pushes, 1)
	assert.Equal(t, "4.5", p.pushes[0].String())
	assert.Equal(t, map[string]string{"ev-1": "Event 1"}, p.events, "event created on first push")

	snap := w.Snapshot()
	assert.Equal(t, "ev-1", snap.EventID)
	assert.Equal(t, clock.Now(), snap.LastSynced)
	assert.True(t, snap.HasSyncLink)
}

func TestWindow_RollbackOnPushFailure(t *testing.T) {
	p := newFakeProvider()
	clock := newFakeClock()
	_, w := loadedWindow(t, p, clock, syncedConfig())
	ctx := context.Background()

	_, err := w.UpdateQuantity(ctx, "red", OpSet("2"))
	require.NoError(t, err)
	before, _ := w.Item("red")

	p.set(func(p *fakeProvider) { p.pushErr = errRemote })
	clock.Advance(time.Minute)

	item, err := w.UpdateQuantity(ctx, "red", OpIncrement)
	assert.ErrorIs(t, err, ErrUpdateRejected)
	assert.ErrorIs(t, err, errRemote)
	assert.Equal(t, "2", item.Quantity.String(), "value reverts to the pre-update quantity")
	assert.Equal(t, before.LastUpdated, item.LastUpdated)
	assert.False(t, item.Pending)

	notice := w.Notice()
	require.NotNil(t, notice)
	assert.Equal(t, models.NoticeError, notice.Kind)
	assert.Contains(t, notice.Message, "House Red")

	clock.Advance(10 * time.Second)
	assert.NotNil(t, w.Notice(), "errors persist until dismissed")
	w.DismissNotice()
	assert.Nil(t, w.Notice())
}

func TestWindow_SameItemMutationsDoNotOverlap(t *testing.T) {
	p := newFakeProvider()
	_, w := loadedWindow(t, p, newFakeClock(), syncedConfig())
	ctx := context.Background()

	block := make(chan struct{})
	p.set(func(p *fakeProvider) { p.block = block })

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := w.UpdateQuantity(ctx, "ipa", OpIncrement)
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		item, _ := w.Item("ipa")
		return item.Pending
	}, time.Second, time.Millisecond)

	item, err := w.UpdateQuantity(ctx, "ipa", OpIncrement)
	assert.ErrorIs(t, err, ErrItemBusy)
	assert.Equal(t, "1", item.Quantity.String())
	assert.True(t, w.Snapshot().Stats.TotalConsumption.Equal(dec("1")))
	assert.True(t, w.syncing())

	close(block)
	wg.Wait()

	item, err = w.UpdateQuantity(ctx, "ipa", OpIncrement)
	require.NoError(t, err)
	assert.Equal(t, "2", item.Quantity.String())
}

func TestWindow_ClosedMidPushIgnoresResult(t *testing.T) {
	p := newFakeProvider()
	m, w := loadedWindow(t, p, newFakeClock(), syncedConfig())
	ctx := context.Background()

	block := make(chan struct{})
	p.set(func(p *fakeProvider) {
		p.block = block
		p.pushErr = errRemote
	})

	done := make(chan error, 1)
	go func() {
		_, err := w.UpdateQuantity(ctx, "ipa", OpIncrement)
		done <- err
	}()

	require.Eventually(t, func() bool {
		item, _ := w.Item("ipa")
		return item.Pending
	}, time.Second, time.Millisecond)

	require.NoError(t, m.Close(w.ID(), true))
	close(block)

	assert.ErrorIs(t, <-done, ErrUpdateRejected)
	item, _ := w.Item("ipa")
	assert.Equal(t, "1", item.Quantity.String(), "torn-down window is not mutated")
	assert.Nil(t, w.Notice())

	_, err := w.UpdateQuantity(ctx, "ipa", OpIncrement)
	assert.ErrorIs(t, err, ErrWindowClosed)
}

func TestWindow_RenameEvent(t *testing.T) {
	p := newFakeProvider()
	clock := newFakeClock()
	_, w := loadedWindow(t, p, clock, testConfig())
	ctx := context.Background()

	assert.Equal(t, "Event 1", w.EventName())
	assert.ErrorIs(t, w.StageEventName("   "), ErrInvalidEventName)

	require.NoError(t, w.StageEventName("Friday Tasting"))
	w.CancelEventName()
	require.NoError(t, w.CommitEventName(ctx), "nothing staged is a no-op")
	assert.Equal(t, "Event 1", w.EventName())
	assert.Empty(t, p.events)

	require.NoError(t, w.StageEventName("Friday Tasting"))
	assert.Equal(t, "Friday Tasting", w.Snapshot().DraftName)
	require.NoError(t, w.CommitEventName(ctx))

	assert.Equal(t, "Friday Tasting", w.EventName())
	assert.Equal(t, map[string]string{"ev-1": "Friday Tasting"}, p.events)
	assert.Empty(t, p.renames, "a new event is created under the new name")

	notice := w.Notice()
	require.NotNil(t, notice)
	assert.Equal(t, models.NoticeSuccess, notice.Kind)

	clock.Advance(3 * time.Second)
	assert.Nil(t, w.Notice(), "confirmation auto-clears")

	require.NoError(t, w.StageEventName("Saturday Tasting"))
	require.NoError(t, w.CommitEventName(ctx))
	assert.Equal(t, []string{"Saturday Tasting"}, p.renames)
}

func TestWindow_FailedRenameReverts(t *testing.T) {
	p := newFakeProvider()
	clock := newFakeClock()
	_, w := loadedWindow(t, p, clock, syncedConfig())
	ctx := context.Background()

	_, err := w.UpdateQuantity(ctx, "red", OpIncrement)
	require.NoError(t, err)
	require.Equal(t, "ev-1", w.Snapshot().EventID)

	p.set(func(p *fakeProvider) { p.eventErr = errRemote })

	require.NoError(t, w.StageEventName("Saturday Gala"))
	err = w.CommitEventName(ctx)
	assert.ErrorIs(t, err, ErrUpdateRejected)

	assert.Equal(t, "Event 1", w.EventName())
	notice := w.Notice()
	require.NotNil(t, notice)
	assert.Equal(t, models.NoticeError, notice.Kind)
	assert.Contains(t, notice.Message, errRemote.Error())

	clock.Advance(time.Minute)
	assert.NotNil(t, w.Notice())
}

func TestWindow_PushDuringRenameUsesCommittedName(t *testing.T) {
	p := newFakeProvider()
	_, w := loadedWindow(t, p, newFakeClock(), syncedConfig())
	ctx := context.Background()

	// A rename has been applied locally and its save has not started yet.
	w.mu.Lock()
	w.eventName = "Saturday Gala"
	w.renaming = true
	w.mu.Unlock()

	_, err := w.UpdateQuantity(ctx, "red", OpIncrement)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ev-1": "Event 1"}, p.events,
		"the event is created under the last saved name")

	w.mu.Lock()
	w.eventName = "Event 1"
	w.renaming = false
	w.mu.Unlock()

	p.set(func(p *fakeProvider) { p.updateErr = errRemote })
	require.NoError(t, w.StageEventName("Saturday Gala"))
	assert.ErrorIs(t, w.CommitEventName(ctx), ErrUpdateRejected)

	assert.Equal(t, "Event 1", w.EventName())
	assert.Equal(t, w.EventName(), p.events["ev-1"], "displayed name matches the sheet after a failed rename")

	p.set(func(p *fakeProvider) { p.updateErr = nil })
	require.NoError(t, w.StageEventName("Saturday Gala"))
	require.NoError(t, w.CommitEventName(ctx))
	assert.Equal(t, "Saturday Gala", p.events["ev-1"])
	assert.Equal(t, []string{"Saturday Gala"}, p.renames)
}

func TestWindow_SendReport(t *testing.T) {
	p := newFakeProvider()
	clock := newFakeClock()
	_, w := loadedWindow(t, p, clock, testConfig())
	ctx := context.Background()

	assert.False(t, w.CanSendReport())
	assert.ErrorIs(t, w.SendReport(ctx), ErrNothingToReport)

	_, err := w.UpdateQuantity(ctx, "red", OpSet("2"))
	require.NoError(t, err)
	_, err = w.UpdateQuantity(ctx, "ipa", OpIncrement)
	require.NoError(t, err)
	assert.True(t, w.CanSendReport())

	require.NoError(t, w.SendReport(ctx))
	require.Len(t, p.reports, 1)
	report := p.reports[0]
	assert.Equal(t, "ev-1", report.EventID)
	assert.Equal(t, "Event 1", report.EventName)
	assert.Equal(t, "summary", report.Template)
	assert.Equal(t, "3", report.Total.String())
	assert.Len(t, report.Lines, 2)

	notice := w.Notice()
	require.NotNil(t, notice)
	assert.Equal(t, models.NoticeSuccess, notice.Kind)
	clock.Advance(3 * time.Second)
	assert.Nil(t, w.Notice())
}

func TestWindow_SendReportGuards(t *testing.T) {
	p := newFakeProvider()
	clock := newFakeClock()
	_, w := loadedWindow(t, p, clock, testConfig())
	ctx := context.Background()

	_, err := w.UpdateQuantity(ctx, "ipa", OpIncrement)
	require.NoError(t, err)

	w.mu.Lock()
	w.sending = true
	w.mu.Unlock()
	assert.ErrorIs(t, w.SendReport(ctx), ErrReportInFlight)
	assert.False(t, w.CanSendReport())

	w.mu.Lock()
	w.sending = false
	w.mu.Unlock()

	p.set(func(p *fakeProvider) { p.reportErr = errRemote })
	err = w.SendReport(ctx)
	assert.ErrorIs(t, err, ErrUpdateRejected)

	notice := w.Notice()
	require.NotNil(t, notice)
	assert.Equal(t, models.NoticeError, notice.Kind)
	assert.False(t, w.Snapshot().Sending)

	item, _ := w.Item("ipa")
	assert.Equal(t, "1", item.Quantity.String(), "a failed send keeps the counts")
}

func TestWindow_ViewFiltersAndGroups(t *testing.T) {
	p := newFakeProvider()
	_, w := loadedWindow(t, p, newFakeClock(), testConfig())
	ctx := context.Background()

	_, err := w.UpdateQuantity(ctx, "red", OpSet("2"))
	require.NoError(t, err)
	_, err = w.UpdateQuantity(ctx, "pro", OpSet("1.5"))
	require.NoError(t, err)

	groups := w.View(models.ViewFilter{})
	require.Len(t, groups, 3)
	assert.Equal(t, "Wine", groups[0].Category)
	assert.Equal(t, "3.5", groups[0].Total.String())
	assert.Equal(t, "Soft", groups[2].Category)

	groups = w.View(models.ViewFilter{Categories: []string{"Beer", "Soft"}})
	require.Len(t, groups, 2)
	assert.Equal(t, "Beer", groups[0].Category)

	groups = w.View(models.ViewFilter{Search: "PROS"})
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"Prosecco"}, brands(groups[0].Items))

	groups = w.View(models.ViewFilter{Search: "wine"})
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Items, 2, "search matches category too")

	assert.Empty(t, w.View(models.ViewFilter{Categories: []string{"Beer"}, Search: "red"}))

	assert.True(t, w.ToggleCategory("Wine"))
	groups = w.View(models.ViewFilter{})
	assert.True(t, groups[0].Collapsed)
	assert.Len(t, groups[0].Items, 2, "collapsing never drops items")
	assert.Equal(t, []string{"Wine"}, w.Snapshot().Collapsed)
	assert.False(t, w.ToggleCategory("Wine"))
	assert.Empty(t, w.Snapshot().Collapsed)
}

func TestWindow_Stats(t *testing.T) {
	p := newFakeProvider()
	_, w := loadedWindow(t, p, newFakeClock(), testConfig())

	assert.False(t, w.Dirty())
	_, err := w.UpdateQuantity(context.Background(), "kom", OpSet("3"))
	require.NoError(t, err)

	stats := w.Stats()
	assert.Equal(t, 4, stats.TotalItems)
	assert.Equal(t, 1, stats.ItemsWithConsumption)
	assert.Equal(t, "3", stats.TotalConsumption.String())
	assert.InDelta(t, 0.25, stats.CompletionRate, 1e-9)
	assert.True(t, w.Dirty())
}

func TestWindow_ConfigIsolated(t *testing.T) {
	cfg := testConfig()
	_, w := loadedWindow(t, newFakeProvider(), newFakeClock(), cfg)

	cfg.Categories[0] = "Changed"
	cfg.Email.Recipients[0] = "other@bar.test"
	cfg.Brands["Wine"][0] = "Changed"

	got := w.Config()
	assert.Equal(t, "Wine", got.Categories[0])
	assert.Equal(t, "gm@bar.test", got.Email.Recipients[0])
	assert.Equal(t, "House Red", got.Brands["Wine"][0])
}
