package touch

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/sweeney/ballbalancer/internal/hal"
)

type fakePanel struct {
	xp, xm, yp, ym *hal.FakeTerminal
}

func (f fakePanel) terminals() hal.Terminals {
	return hal.Terminals{Xp: f.xp, Xm: f.xm, Yp: f.yp, Ym: f.ym}
}

// stepClock returns a clock that advances by step on every call.
func stepClock(step time.Duration) func() time.Time {
	t := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		now := t
		t = t.Add(step)
		return now
	}
}

func testConfig() Config {
	return Config{
		Length:    0.176,
		Width:     0.100,
		FullScale: 4000,
	}
}

func newFakePanel(ymCodes, xmCodes []int) fakePanel {
	return fakePanel{
		xp: hal.NewFakeTerminal(),
		xm: hal.NewFakeTerminal(xmCodes...),
		yp: hal.NewFakeTerminal(),
		ym: hal.NewFakeTerminal(ymCodes...),
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScanComposite(t *testing.T) {
	// Ym is sampled for X and then for Z.
	f := newFakePanel([]int{3000, 1000}, []int{2500})
	p := New(f.terminals(), testConfig(), stepClock(time.Millisecond))

	s, err := p.Scan()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approx(s.X, 0.044) {
		t.Errorf("X: got %v, want 0.044", s.X)
	}
	if !approx(s.Y, 0.0125) {
		t.Errorf("Y: got %v, want 0.0125", s.Y)
	}
	if !s.Contact {
		t.Error("expected contact")
	}
	if got := s.Pos(); !approx(got.X(), s.X) || !approx(got.Y(), s.Y) {
		t.Errorf("Pos: got %v", got)
	}
}

func TestScanRoles(t *testing.T) {
	f := newFakePanel([]int{2000}, []int{2000})
	p := New(f.terminals(), testConfig(), nil)

	if _, err := p.Scan(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string][]hal.Mode{
		"Xp": {hal.ModeDriveHigh, hal.ModeFloat, hal.ModeFloat},
		"Xm": {hal.ModeDriveLow, hal.ModeAnalog, hal.ModeDriveLow},
		"Yp": {hal.ModeFloat, hal.ModeDriveHigh, hal.ModeDriveHigh},
		"Ym": {hal.ModeAnalog, hal.ModeDriveLow, hal.ModeAnalog},
	}
	got := map[string][]hal.Mode{
		"Xp": f.xp.Modes,
		"Xm": f.xm.Modes,
		"Yp": f.yp.Modes,
		"Ym": f.ym.Modes,
	}
	for name, w := range want {
		g := got[name]
		if len(g) != len(w) {
			t.Errorf("%s: got %d modes, want %d", name, len(g), len(w))
			continue
		}
		for i := range w {
			if g[i] != w[i] {
				t.Errorf("%s sub-scan %d: got %s, want %s", name, i, g[i], w[i])
			}
		}
	}
}

func TestScanCenterOffset(t *testing.T) {
	cfg := testConfig()
	cfg.Center = mgl64.Vec2{0.01, -0.02}
	f := newFakePanel([]int{2000}, []int{2000})
	p := New(f.terminals(), cfg, nil)

	x, err := p.ScanX()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approx(x, -0.01) {
		t.Errorf("X: got %v, want -0.01", x)
	}

	y, err := p.ScanY()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approx(y, 0.02) {
		t.Errorf("Y: got %v, want 0.02", y)
	}
}

func TestScanZThreshold(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		threshold int
		want      bool
	}{
		{"floating high", 4095, 0, false},
		{"at full scale", 4000, 0, false},
		{"just below full scale", 3999, 0, true},
		{"pulled low", 120, 0, true},
		{"custom threshold", 3500, 3000, false},
		{"custom threshold contact", 2999, 3000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.ContactThreshold = tt.threshold
			f := newFakePanel([]int{tt.code}, nil)
			p := New(f.terminals(), cfg, nil)

			got, err := p.ScanZ()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("contact: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScanNoBoundsCheck(t *testing.T) {
	// Out-of-range codes still map linearly; the caller gates on contact.
	f := newFakePanel([]int{8000, 4095}, []int{0})
	p := New(f.terminals(), testConfig(), nil)

	s, err := p.Scan()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approx(s.X, 0.264) {
		t.Errorf("X: got %v, want 0.264", s.X)
	}
	if !approx(s.Y, -0.05) {
		t.Errorf("Y: got %v, want -0.05", s.Y)
	}
	if s.Contact {
		t.Error("expected no contact")
	}
}

func TestScanTimeAccumulates(t *testing.T) {
	f := newFakePanel([]int{2000}, []int{2000})
	p := New(f.terminals(), testConfig(), stepClock(time.Millisecond))

	if p.TotalScanTime() != 0 {
		t.Errorf("initial total: got %v, want 0", p.TotalScanTime())
	}

	p.Scan()
	if got := p.TotalScanTime(); got != 3*time.Millisecond {
		t.Errorf("after one scan: got %v, want 3ms", got)
	}

	p.ScanX()
	p.Scan()
	if got := p.TotalScanTime(); got != 7*time.Millisecond {
		t.Errorf("after more scans: got %v, want 7ms", got)
	}
}

func TestScanErrors(t *testing.T) {
	f := newFakePanel([]int{2000}, []int{2000})
	f.xm.ReadError = errors.New("spi fault")
	p := New(f.terminals(), testConfig(), nil)

	_, err := p.Scan()
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, f.xm.ReadError) {
		t.Errorf("expected wrapped read error, got %v", err)
	}

	f = newFakePanel([]int{2000}, []int{2000})
	f.yp.ConfigureError = errors.New("line busy")
	p = New(f.terminals(), testConfig(), nil)
	if _, err := p.ScanX(); err == nil {
		t.Error("expected configure error")
	}
}
