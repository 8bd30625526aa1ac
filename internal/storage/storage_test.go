package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"campbot/pkg/logx"
)

type item struct {
	ID  string `json:"id"`
	End int64  `json:"end"`
}

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	for name, cfg := range map[string]Config{
		"file":   {Driver: "file", Path: filepath.Join(dir, "files")},
		"sqlite": {Driver: "sqlite", Path: filepath.Join(dir, "db", "campbot.db")},
	} {
		st, err := Open(cfg, logx.Nop())
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		out[name] = st
	}
	return out
}

func TestCollectionRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for driver, st := range openDrivers(t) {
		t.Run(driver, func(t *testing.T) {
			c := NewCollection[item](st, "countdowns", logx.Nop())

			got, err := c.Load(ctx)
			if err != nil || len(got) != 0 {
				t.Fatalf("empty load = %v, %v", got, err)
			}

			if err := c.Save(ctx, []item{{"A", 1}, {"B", 2}}); err != nil {
				t.Fatal(err)
			}
			if err := c.Save(ctx, []item{{"B", 2}}); err != nil {
				t.Fatal(err)
			}
			got, err = c.Load(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 1 || got[0].ID != "B" {
				t.Fatalf("load = %+v", got)
			}
		})
	}
}

func TestAuditPrune(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now()

	for driver, st := range openDrivers(t) {
		t.Run(driver, func(t *testing.T) {
			for _, at := range []time.Time{now.Add(-48 * time.Hour), now.Add(-47 * time.Hour), now} {
				if err := st.AppendAudit(ctx, AuditEntry{At: at, ActorID: 1, Action: "cancel", Outcome: "cancelled"}); err != nil {
					t.Fatal(err)
				}
			}
			n, err := st.PruneAudit(ctx, now.Add(-24*time.Hour))
			if err != nil {
				t.Fatal(err)
			}
			if n != 2 {
				t.Fatalf("pruned %d, want 2", n)
			}
			n, err = st.PruneAudit(ctx, now.Add(-24*time.Hour))
			if err != nil || n != 0 {
				t.Fatalf("second prune = %d, %v", n, err)
			}
			// still writable after the rewrite
			if err := st.AppendAudit(ctx, AuditEntry{Action: "cancel", Outcome: "not_found"}); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestFileCorruptCollectionLoadsEmpty(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	st, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if err := os.WriteFile(filepath.Join(dir, "countdowns.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := NewCollection[item](st, "countdowns", logx.Nop()).Load(context.Background())
	if err != nil || got != nil {
		t.Fatalf("load = %v, %v", got, err)
	}
}

func TestFileSaveLeavesNoTempFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	st, err := Open(Config{Path: dir}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	for i := 0; i < 3; i++ {
		if err := st.SaveCollection(context.Background(), "countdowns", []byte("[]")); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("leftover temp file %s", e.Name())
		}
	}
}

func TestOpenRejects(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop()); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("err = %v", err)
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected missing path error")
	}
	st, err := Open(Config{Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if err := st.SaveCollection(context.Background(), "../escape", nil); err == nil {
		t.Fatal("expected invalid name error")
	}
}
