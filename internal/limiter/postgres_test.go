package limiter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct{ scan func(dest ...any) error }

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakePool struct {
	qrErr         error
	qrBlockedTill time.Time
	qrFailsRet    int

	lastArgs    []any
	lastExecSQL string
	execErr     error
}

func (f *fakePool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastExecSQL = sql
	f.lastArgs = args
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakePool) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.lastArgs = args
	switch {
	case strings.Contains(sql, "SELECT blocked_until"):
		return fakeRow{scan: func(dest ...any) error {
			if f.qrErr != nil {
				return f.qrErr
			}
			*(dest[0].(*time.Time)) = f.qrBlockedTill
			return nil
		}}
	case strings.Contains(sql, "RETURNING fail_count"):
		return fakeRow{scan: func(dest ...any) error {
			if f.qrErr != nil {
				return f.qrErr
			}
			*(dest[0].(*int)) = f.qrFailsRet
			return nil
		}}
	default:
		return fakeRow{scan: func(...any) error { return errors.New("unexpected query") }}
	}
}

var testCfg = Config{Window: 15 * time.Minute, MaxFails: 5, BlockFor: 10 * time.Minute}

func TestAllow_NoRow_Allows(t *testing.T) {
	l := NewPG(&fakePool{qrErr: pgx.ErrNoRows}, testCfg)

	ok, dur, err := l.Allow(context.Background(), "a@b.c", []byte("h"))
	if err != nil || !ok || dur != 0 {
		t.Fatalf("Allow no-row: ok=%v dur=%v err=%v", ok, dur, err)
	}
}

func TestAllow_BlockedUntilFuture(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewPG(&fakePool{qrBlockedTill: now.Add(3 * time.Minute)}, testCfg)
	l.now = func() time.Time { return now }

	ok, dur, err := l.Allow(context.Background(), "a@b.c", []byte("h"))
	if err != nil || ok || dur != 3*time.Minute {
		t.Fatalf("Allow blocked: ok=%v dur=%v err=%v", ok, dur, err)
	}
}

func TestAllow_Epoch_Allows(t *testing.T) {
	l := NewPG(&fakePool{qrBlockedTill: time.Unix(0, 0)}, testCfg)

	ok, dur, err := l.Allow(context.Background(), "a@b.c", []byte("h"))
	if err != nil || !ok || dur != 0 {
		t.Fatalf("Allow epoch: ok=%v dur=%v err=%v", ok, dur, err)
	}
}

func TestAllow_DBError_Propagates(t *testing.T) {
	l := NewPG(&fakePool{qrErr: errors.New("db boom")}, testCfg)

	ok, _, err := l.Allow(context.Background(), "a@b.c", []byte("h"))
	if err == nil || ok {
		t.Fatalf("want error propagate, got ok=%v err=%v", ok, err)
	}
}

func TestSuccess_NormalizesEmail(t *testing.T) {
	fp := &fakePool{}
	l := NewPG(fp, testCfg)

	if err := l.Success(context.Background(), "  Alice@Example.COM ", []byte("h")); err != nil {
		t.Fatalf("success err: %v", err)
	}
	if !strings.Contains(fp.lastExecSQL, "INSERT INTO auth_limiter") {
		t.Fatalf("unexpected exec: %s", fp.lastExecSQL)
	}
	if fp.lastArgs[0] != "alice@example.com" {
		t.Fatalf("key not normalized: %v", fp.lastArgs[0])
	}
}

func TestSuccess_ExecError_Propagates(t *testing.T) {
	l := NewPG(&fakePool{execErr: errors.New("exec fail")}, testCfg)

	if err := l.Success(context.Background(), "a@b.c", []byte("h")); err == nil {
		t.Fatalf("want exec error")
	}
}

func TestFailure_Increments_NoBlock(t *testing.T) {
	l := NewPG(&fakePool{qrFailsRet: 2}, testCfg)

	blocked, dur, err := l.Failure(context.Background(), "a@b.c", []byte("h"))
	if err != nil || blocked || dur != 0 {
		t.Fatalf("Failure no block: blocked=%v dur=%v err=%v", blocked, dur, err)
	}
}

func TestFailure_BlocksAtThreshold(t *testing.T) {
	fp := &fakePool{qrFailsRet: 5}
	l := NewPG(fp, testCfg)

	blocked, dur, err := l.Failure(context.Background(), "a@b.c", []byte("h"))
	if err != nil || !blocked || dur != 10*time.Minute {
		t.Fatalf("Failure block: blocked=%v dur=%v err=%v", blocked, dur, err)
	}
	if !strings.Contains(fp.lastExecSQL, "UPDATE auth_limiter SET blocked_until") {
		t.Fatalf("must update blocked_until, exec=%s", fp.lastExecSQL)
	}
}

func TestFailure_ZeroMaxFailsNeverBlocks(t *testing.T) {
	l := NewPG(&fakePool{qrFailsRet: 100}, Config{Window: time.Minute})

	blocked, _, err := l.Failure(context.Background(), "a@b.c", []byte("h"))
	if err != nil || blocked {
		t.Fatalf("blocked=%v err=%v", blocked, err)
	}
}

func TestFailure_DBErrorOnReturning(t *testing.T) {
	l := NewPG(&fakePool{qrErr: errors.New("query error")}, testCfg)

	if _, _, err := l.Failure(context.Background(), "a@b.c", []byte("h")); err == nil {
		t.Fatalf("want error from returning fail_count")
	}
}

func TestHashIP_Determinism(t *testing.T) {
	a := HashIP("1.2.3.4")
	b := HashIP("1.2.3.4")
	c := HashIP("5.6.7.8")
	if string(a) != string(b) || string(a) == string(c) || len(a) != 32 {
		t.Fatalf("hash mismatch/len: %d", len(a))
	}
}

func TestNop(t *testing.T) {
	var l Limiter = Nop{}
	ok, _, err := l.Allow(context.Background(), "x", nil)
	if !ok || err != nil {
		t.Fatalf("nop must allow")
	}
}
