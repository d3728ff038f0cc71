package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/rxtech-lab/marketboard/internal/depth"
	"github.com/rxtech-lab/marketboard/internal/market"
	"github.com/rxtech-lab/marketboard/internal/scheduler"
	"github.com/rxtech-lab/marketboard/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T) (Model, *market.Orchestrator, *scheduler.Scheduler) {
	t.Helper()

	orch, err := market.NewOrchestrator(nil, nil, market.Options{Symbol: "BTC-USDT", Mode: types.ModeMock}, nil)
	require.NoError(t, err)

	opts := scheduler.DefaultOptions()
	opts.AutoRefresh = false
	opts.LiveTick = false

	sched, err := scheduler.New(orch, opts, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		orch.Close()
	})

	return NewModel(ctx, orch, sched), orch, sched
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestNewModel(t *testing.T) {
	m, _, _ := newTestModel(t)

	assert.Equal(t, "BTC-USDT", m.view.Symbol)
	assert.False(t, m.status.AutoRefresh)
	assert.False(t, m.editing)
	assert.False(t, m.sideBySide)
}

func TestDashboardRendersMockData(t *testing.T) {
	m, _, _ := newTestModel(t)
	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(140, 40))

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("marketboard · BTC-USDT")) &&
			bytes.Contains(bts, []byte("using demo data (mock mode)")) &&
			bytes.Contains(bts, []byte("Last ")) &&
			bytes.Contains(bts, []byte("spread "))
	}, teatest.WithDuration(3*time.Second))

	require.NoError(t, tm.Quit())
}

func TestSchedulerKeys(t *testing.T) {
	m, _, sched := newTestModel(t)
	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(140, 40))

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("auto: off every 30s"))
	}, teatest.WithDuration(3*time.Second))

	tm.Send(runeKey('a'))

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("auto: on every 30s"))
	}, teatest.WithDuration(3*time.Second))

	tm.Send(runeKey('+'))

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("every 1m0s"))
	}, teatest.WithDuration(3*time.Second))

	tm.Send(runeKey('q'))
	tm.WaitFinished(t, teatest.WithFinalTimeout(2*time.Second))

	status := sched.Status()
	assert.True(t, status.AutoRefresh)
	assert.Equal(t, time.Minute, status.Interval)
}

func TestLayoutToggle(t *testing.T) {
	m, orch, _ := newTestModel(t)
	orch.RefreshAllAndWait(context.Background())

	newModel, _ := m.Update(UpdateMsg{})
	m = newModel.(Model)
	assert.NotContains(t, m.View(), "Bids")

	newModel, _ = m.Update(runeKey('d'))
	m = newModel.(Model)
	assert.True(t, m.sideBySide)
	assert.Contains(t, m.View(), "Bids")
	assert.Contains(t, m.View(), "Asks")
}

func TestSymbolSwitch(t *testing.T) {
	m, orch, _ := newTestModel(t)

	newModel, _ := m.Update(runeKey('s'))
	m = newModel.(Model)
	assert.True(t, m.editing)
	assert.Contains(t, m.View(), "symbol>")

	// keys go to the input while editing
	newModel, _ = m.Update(runeKey('q'))
	m = newModel.(Model)
	assert.True(t, m.editing)

	newModel, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = newModel.(Model)
	assert.False(t, m.editing)

	msg := m.switchSymbol("eth-usdt")()
	assert.IsType(t, UpdateMsg{}, msg)
	assert.Equal(t, "ETH-USDT", orch.Symbol())

	msg = m.switchSymbol("   ")()
	assert.IsType(t, ErrorMsg{}, msg)

	newModel, _ = m.Update(msg)
	assert.Contains(t, newModel.(Model).View(), "Error:")
}

func TestWindowResize(t *testing.T) {
	m, _, _ := newTestModel(t)

	newModel, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	updated := newModel.(Model)

	assert.Equal(t, 120, updated.width)
	assert.Equal(t, 40, updated.height)
}

func TestRenderDepthStacksAsksAboveBids(t *testing.T) {
	book := depth.Normalize(types.DepthSnapshot{
		Symbol: "BTC-USDT",
		Bids:   []types.PriceLevel{types.NewPriceLevel(100, 2), types.NewPriceLevel(99, 3)},
		Asks:   []types.PriceLevel{types.NewPriceLevel(101, 1), types.NewPriceLevel(102, 4)},
	}, 0)

	out := RenderDepth(book, depthRows)

	ask102 := strings.Index(out, "102")
	ask101 := strings.Index(out, "101")
	spread := strings.Index(out, "spread 1")
	bid100 := strings.Index(out, "100")
	bid99 := strings.Index(out, "99")

	assert.True(t, ask102 < ask101, "highest ask is drawn first")
	assert.True(t, ask101 < spread, "spread sits below the asks")
	assert.True(t, spread < bid100, "bids follow the spread")
	assert.True(t, bid100 < bid99)
	assert.Contains(t, out, "bids 50%")

	empty := RenderDepth(depth.Normalize(types.DepthSnapshot{Symbol: "BTC-USDT"}, 0), depthRows)
	assert.Contains(t, empty, "spread: n/a")
}

func TestDepthBar(t *testing.T) {
	tests := []struct {
		name    string
		percent float64
		want    int
	}{
		{"empty", 0, 0},
		{"tiny still shows", 1, 1},
		{"half", 50, 10},
		{"full", 100, 20},
		{"clamped", 140, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, len([]rune(DepthBar(tt.percent, barWidth))))
		})
	}
}

func TestPresets(t *testing.T) {
	presets := scheduler.Presets

	assert.Equal(t, 60*time.Second, NextPreset(presets, 30*time.Second))
	assert.Equal(t, 60*time.Second, NextPreset(presets, 60*time.Second))
	assert.Equal(t, 15*time.Second, NextPreset(presets, 7*time.Second))
	assert.Equal(t, 15*time.Second, PrevPreset(presets, 30*time.Second))
	assert.Equal(t, 5*time.Second, PrevPreset(presets, 5*time.Second))
	assert.Equal(t, 30*time.Second, PrevPreset(presets, 45*time.Second))
}

func TestFormatPriceWithArrow(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		previous string
		contains string
	}{
		{"price up", "100", "90", "▲"},
		{"price down", "90", "100", "▼"},
		{"unchanged", "100", "100", "100"},
		{"no previous", "100", "0", "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatPriceWithArrow(decimal.RequireFromString(tt.current), decimal.RequireFromString(tt.previous))
			assert.Contains(t, result, tt.contains)
		})
	}
}
