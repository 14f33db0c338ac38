package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "archives.db"))
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_SaveAndGetArchive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := &Archive{
		ChannelID:  "tg-main",
		ChatID:     "1001",
		UserID:     "42",
		Kind:       KindText,
		Title:      "groceries",
		Content:    "milk, eggs",
		SourceName: "Some Channel",
		SourceType: "channel",
		Forwarded:  true,
		CreatedAt:  time.Unix(1700000000, 0),
	}
	id, err := store.SaveArchive(ctx, in)
	if err != nil {
		t.Fatalf("SaveArchive() error: %v", err)
	}
	if id == 0 {
		t.Fatal("SaveArchive() returned id 0")
	}

	got, err := store.GetArchive(ctx, id)
	if err != nil {
		t.Fatalf("GetArchive() error: %v", err)
	}
	if got == nil {
		t.Fatal("GetArchive() returned nil for saved archive")
	}
	if got.Content != "milk, eggs" || got.Kind != KindText {
		t.Errorf("got content=%q kind=%q", got.Content, got.Kind)
	}
	if !got.Forwarded || got.SourceName != "Some Channel" {
		t.Errorf("forwarded attribution lost: %+v", got)
	}
	if !got.CreatedAt.Equal(in.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, in.CreatedAt)
	}
}

func TestStore_GetArchive_Missing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetArchive(context.Background(), 9999)
	if err != nil {
		t.Fatalf("GetArchive() error: %v", err)
	}
	if got != nil {
		t.Errorf("GetArchive() = %+v, want nil for missing row", got)
	}
}

func TestStore_ListRecent_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.SaveArchive(ctx, &Archive{
			ChannelID: "tg-main",
			ChatID:    "1",
			UserID:    "1",
			Kind:      KindText,
			Content:   "note",
			CreatedAt: time.Unix(int64(1700000000+i), 0),
		})
		if err != nil {
			t.Fatalf("SaveArchive() error: %v", err)
		}
	}

	got, err := store.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListRecent() returned %d rows, want 2", len(got))
	}
	if !got[0].CreatedAt.After(got[1].CreatedAt) {
		t.Errorf("rows not newest-first: %v then %v", got[0].CreatedAt, got[1].CreatedAt)
	}
}

func TestStore_FindByFileID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.SaveArchive(ctx, &Archive{
		ChannelID: "tg-main",
		ChatID:    "1",
		UserID:    "1",
		Kind:      KindMedia,
		FileIDs:   []string{"AgAC-photo-123", "AgAC-photo-456"},
		ItemCount: 2,
	})
	if err != nil {
		t.Fatalf("SaveArchive() error: %v", err)
	}

	dup, err := store.FindByFileID(ctx, "AgAC-photo-456")
	if err != nil {
		t.Fatalf("FindByFileID() error: %v", err)
	}
	if dup == nil || dup.ID != id {
		t.Fatalf("FindByFileID() = %+v, want archive %d", dup, id)
	}

	none, err := store.FindByFileID(ctx, "AgAC-other")
	if err != nil {
		t.Fatalf("FindByFileID() error: %v", err)
	}
	if none != nil {
		t.Errorf("FindByFileID() = %+v, want nil for unknown file", none)
	}

	empty, err := store.FindByFileID(ctx, "")
	if err != nil || empty != nil {
		t.Errorf("FindByFileID(\"\") = %+v, %v, want nil, nil", empty, err)
	}
}

func TestStore_NotesAndTags(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.SaveArchive(ctx, &Archive{
		ChannelID: "tg-main", ChatID: "1", UserID: "1",
		Kind: KindText, Content: "recipe #Cooking #dinner",
	})
	if err != nil {
		t.Fatalf("SaveArchive() error: %v", err)
	}

	if _, err := store.AddNote(ctx, id, "  "); err == nil {
		t.Error("AddNote() accepted a blank note")
	}
	if _, err := store.AddNote(ctx, id, "[auto] a summary"); err != nil {
		t.Fatalf("AddNote() error: %v", err)
	}

	notes, err := store.GetNotes(ctx, id)
	if err != nil {
		t.Fatalf("GetNotes() error: %v", err)
	}
	if len(notes) != 1 || notes[0].Content != "[auto] a summary" {
		t.Fatalf("GetNotes() = %+v", notes)
	}

	// tags normalize to lowercase and duplicates collapse
	if err := store.TagArchive(ctx, id, []string{"#Cooking", "dinner", "cooking"}); err != nil {
		t.Fatalf("TagArchive() error: %v", err)
	}
	tags, err := store.TagsFor(ctx, id)
	if err != nil {
		t.Fatalf("TagsFor() error: %v", err)
	}
	if len(tags) != 2 || tags[0] != "cooking" || tags[1] != "dinner" {
		t.Errorf("TagsFor() = %v, want [cooking dinner]", tags)
	}
}

func TestStore_Stats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.SaveArchive(ctx, &Archive{
		ChannelID: "tg-main", ChatID: "1", UserID: "1", Kind: KindText, Content: "x",
	})
	if err != nil {
		t.Fatalf("SaveArchive() error: %v", err)
	}
	if _, err := store.AddNote(ctx, id, "note"); err != nil {
		t.Fatalf("AddNote() error: %v", err)
	}
	if err := store.TagArchive(ctx, id, []string{"a", "b"}); err != nil {
		t.Fatalf("TagArchive() error: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.Archives != 1 || stats.Notes != 1 || stats.Tags != 2 {
		t.Errorf("Stats() = %+v", stats)
	}

	if err := store.Vacuum(ctx); err != nil {
		t.Errorf("Vacuum() error: %v", err)
	}
}
