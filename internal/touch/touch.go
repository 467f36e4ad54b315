// Package touch reads ball position from a 4-wire resistive touch panel.
//
// The four terminals are shared between three measurements. Each sub-scan
// drives a voltage gradient across one pair and samples an orthogonal
// terminal through the ADC:
//
//	X: Xp high, Xm low, Yp float, read Ym
//	Y: Yp high, Ym low, Xp float, read Xm
//	Z: Yp high, Xm low, Xp float, read Ym
//
// A scan is one non-preemptible unit; concurrent callers are serialised.
package touch

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/sweeney/ballbalancer/internal/hal"
)

// Config holds the panel geometry and ADC calibration.
type Config struct {
	// Length is the extent of the X axis in meters.
	Length float64
	// Width is the extent of the Y axis in meters.
	Width float64
	// Center is the offset of the platform center in panel coordinates.
	Center mgl64.Vec2
	// FullScale is the ADC code corresponding to the full axis span.
	FullScale int
	// ContactThreshold: codes below it mean the panel is touched.
	ContactThreshold int
}

// Sample is one composite scan. X and Y are meaningless when Contact is false.
type Sample struct {
	X       float64
	Y       float64
	Contact bool
}

// Pos returns the planar position.
func (s Sample) Pos() mgl64.Vec2 {
	return mgl64.Vec2{s.X, s.Y}
}

// Panel is the position sensor.
type Panel struct {
	cfg   Config
	t     hal.Terminals
	now   func() time.Time
	mu    sync.Mutex
	total time.Duration
}

// New creates a Panel. now is the clock used for scan timing; nil means time.Now.
func New(t hal.Terminals, cfg Config, now func() time.Time) *Panel {
	if now == nil {
		now = time.Now
	}
	if cfg.ContactThreshold == 0 {
		cfg.ContactThreshold = cfg.FullScale
	}
	return &Panel{cfg: cfg, t: t, now: now}
}

type role struct {
	term hal.Terminal
	mode hal.Mode
}

// sample applies the roles in order and reads the last terminal.
func (p *Panel) sample(roles [4]role) (int, error) {
	start := p.now()
	defer func() { p.total += p.now().Sub(start) }()

	for _, r := range roles {
		if err := r.term.Configure(r.mode); err != nil {
			return 0, err
		}
	}
	code, err := roles[3].term.ReadAnalog()
	if err != nil {
		return 0, fmt.Errorf("read adc: %w", err)
	}
	return code, nil
}

func (p *Panel) toLength(code int, span, offset float64) float64 {
	fs := float64(p.cfg.FullScale)
	return (float64(code)-fs/2)*span/fs - offset
}

// ScanX measures the X coordinate in meters.
func (p *Panel) ScanX() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scanX()
}

func (p *Panel) scanX() (float64, error) {
	code, err := p.sample([4]role{
		{p.t.Xp, hal.ModeDriveHigh},
		{p.t.Xm, hal.ModeDriveLow},
		{p.t.Yp, hal.ModeFloat},
		{p.t.Ym, hal.ModeAnalog},
	})
	if err != nil {
		return 0, fmt.Errorf("scan x: %w", err)
	}
	return p.toLength(code, p.cfg.Length, p.cfg.Center.X()), nil
}

// ScanY measures the Y coordinate in meters.
func (p *Panel) ScanY() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scanY()
}

func (p *Panel) scanY() (float64, error) {
	code, err := p.sample([4]role{
		{p.t.Yp, hal.ModeDriveHigh},
		{p.t.Ym, hal.ModeDriveLow},
		{p.t.Xp, hal.ModeFloat},
		{p.t.Xm, hal.ModeAnalog},
	})
	if err != nil {
		return 0, fmt.Errorf("scan y: %w", err)
	}
	return p.toLength(code, p.cfg.Width, p.cfg.Center.Y()), nil
}

// ScanZ reports whether anything is touching the panel. An open panel
// lets the sense node float to the driven rail; contact pulls it low.
func (p *Panel) ScanZ() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scanZ()
}

func (p *Panel) scanZ() (bool, error) {
	code, err := p.sample([4]role{
		{p.t.Yp, hal.ModeDriveHigh},
		{p.t.Xm, hal.ModeDriveLow},
		{p.t.Xp, hal.ModeFloat},
		{p.t.Ym, hal.ModeAnalog},
	})
	if err != nil {
		return false, fmt.Errorf("scan z: %w", err)
	}
	return code < p.cfg.ContactThreshold, nil
}

// Scan runs the X, Y and Z sub-scans back to back.
func (p *Panel) Scan() (Sample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var s Sample
	var err error
	if s.X, err = p.scanX(); err != nil {
		return Sample{}, err
	}
	if s.Y, err = p.scanY(); err != nil {
		return Sample{}, err
	}
	if s.Contact, err = p.scanZ(); err != nil {
		return Sample{}, err
	}
	return s, nil
}

// TotalScanTime returns the cumulative time spent in sub-scans.
func (p *Panel) TotalScanTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}
