package aging

import (
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "aging-state.json"))

	got, err := store.Load()
	if err != nil || got != nil {
		t.Fatalf("fresh store: got %+v, %v; want nil, nil", got, err)
	}

	want := &State{
		CandidateVersion: "1.2.0",
		FirstSeenUTC:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		LastCheckUTC:     time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC),
	}
	if err := store.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err = store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.CandidateVersion != want.CandidateVersion ||
		!got.FirstSeenUTC.Equal(want.FirstSeenUTC) ||
		!got.LastCheckUTC.Equal(want.LastCheckUTC) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
