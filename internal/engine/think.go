package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"volley/internal/core"
	"volley/internal/flow"
	"volley/internal/template"
)

func (c *Compiler) compileThink(n flow.Think) Step {
	return func(ctx context.Context, s *core.Session) error {
		d := n.Duration
		if !n.Numeric() {
			var err error
			if d, err = thinkDuration(n.Expr, s.Vars); err != nil {
				return err
			}
		}
		return Sleep(ctx, jitter(d, c.opts.ThinkJitter))
	}
}

// thinkDuration resolves a think template to a duration in seconds.
func thinkDuration(expr string, vars core.Variables) (time.Duration, error) {
	resolved, err := template.Substitute(expr, vars)
	if err != nil {
		return 0, fmt.Errorf("think: %w", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(resolved), 64)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("think: %q is not a number of seconds", resolved)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// jitter spreads d uniformly over ±percent.
func jitter(d time.Duration, percent float64) time.Duration {
	if percent <= 0 || d <= 0 {
		return d
	}
	spread := float64(d) * percent / 100
	out := time.Duration(float64(d) + spread*(2*rand.Float64()-1))
	return max(out, 0)
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
