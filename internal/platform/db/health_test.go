package db

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeStat struct{}

func (fakeStat) TotalConns() int32              { return 10 }
func (fakeStat) IdleConns() int32               { return 6 }
func (fakeStat) AcquiredConns() int32           { return 4 }
func (fakeStat) MaxConns() int32                { return 20 }
func (fakeStat) AcquireCount() int64            { return 100 }
func (fakeStat) AcquireDuration() time.Duration { return 1500 * time.Millisecond }

func TestStatsFrom(t *testing.T) {
	st := statsFrom(fakeStat{})
	if st.TotalConns != 10 || st.IdleConns != 6 || st.AcquiredConns != 4 || st.MaxConns != 20 {
		t.Errorf("unexpected connection counts: %+v", st)
	}
	if st.AcquireCount != 100 {
		t.Errorf("expected AcquireCount 100, got %d", st.AcquireCount)
	}
	if st.AcquireDuration != "1.5s" {
		t.Errorf("expected AcquireDuration 1.5s, got %q", st.AcquireDuration)
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestCheck(t *testing.T) {
	if err := Check(fakePinger{})(context.Background()); err != nil {
		t.Errorf("expected healthy, got %v", err)
	}

	refused := errors.New("connection refused")
	err := Check(fakePinger{err: refused})(context.Background())
	if !errors.Is(err, refused) {
		t.Errorf("expected wrapped ping error, got %v", err)
	}
}
