package repositories

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/desertthunder/harmonymaker/internal/models"
	"github.com/desertthunder/harmonymaker/internal/shared"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(shared.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, repo *UserRepository, username, email string) *models.User {
	t.Helper()
	user := models.NewUser(0, username, email)
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func newPair(userID, name string, at time.Time) (*models.AudioFile, *models.AudioFile) {
	original := models.NewAudioFile(userID, models.FileTypeOriginal, "original-audio",
		userID+"/"+name, "https://cdn.example.com/original-audio/"+userID+"/"+name)
	original.SetCreatedAt(at)
	transformed := models.NewAudioFile(userID, models.FileTypeTransformed, "transformed-audio",
		userID+"/transformed_"+name, "https://cdn.example.com/transformed-audio/"+userID+"/transformed_"+name)
	transformed.SetCreatedAt(at)
	return original, transformed
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Create", func(t *testing.T) {
		repo := NewUserRepository(setupTestDB(t))
		user := createUser(t, repo, "singer", "singer@example.com")

		if user.ID() == "" {
			t.Error("user ID should be set after creation")
		}
		if user.Sequence() != 1 {
			t.Errorf("expected sequence 1, got %d", user.Sequence())
		}

		second := createUser(t, repo, "drummer", "drummer@example.com")
		if second.Sequence() != 2 {
			t.Errorf("expected sequence 2, got %d", second.Sequence())
		}
	})

	t.Run("Get", func(t *testing.T) {
		repo := NewUserRepository(setupTestDB(t))
		user := models.NewUser(0, "singer", "singer@example.com")
		user.SetPasswordHash("hash")
		if err := repo.Create(ctx, user); err != nil {
			t.Fatalf("failed to create user: %v", err)
		}

		retrieved, err := repo.Get(ctx, user.ID())
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}

		if diff := cmp.Diff(user.Public(), retrieved.Public()); diff != "" {
			t.Errorf("retrieved user mismatch (-want +got):\n%s", diff)
		}
		if retrieved.PasswordHash() != "hash" {
			t.Errorf("expected password hash to round trip, got %q", retrieved.PasswordHash())
		}
	})

	t.Run("Lookups", func(t *testing.T) {
		repo := NewUserRepository(setupTestDB(t))
		user := models.NewUser(0, "singer", "singer@example.com")
		user.SetGoogleSubject("google-123")
		if err := repo.Create(ctx, user); err != nil {
			t.Fatalf("failed to create user: %v", err)
		}

		byName, err := repo.GetByUsername(ctx, "singer")
		if err != nil || byName.ID() != user.ID() {
			t.Errorf("GetByUsername: got %v, %v", byName, err)
		}

		byEmail, err := repo.GetByEmail(ctx, "singer@example.com")
		if err != nil || byEmail.ID() != user.ID() {
			t.Errorf("GetByEmail: got %v, %v", byEmail, err)
		}

		bySub, err := repo.GetByGoogleSubject(ctx, "google-123")
		if err != nil || bySub.ID() != user.ID() {
			t.Errorf("GetByGoogleSubject: got %v, %v", bySub, err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		repo := NewUserRepository(setupTestDB(t))
		user := createUser(t, repo, "singer", "singer@example.com")

		user.SetGoogleSubject("google-456")
		if err := repo.Update(ctx, user); err != nil {
			t.Fatalf("failed to update user: %v", err)
		}

		retrieved, err := repo.Get(ctx, user.ID())
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if retrieved.GoogleSubject() != "google-456" {
			t.Errorf("expected google subject to be updated, got %q", retrieved.GoogleSubject())
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := NewUserRepository(setupTestDB(t))
		user := createUser(t, repo, "singer", "singer@example.com")

		if err := repo.Delete(ctx, user.ID()); err != nil {
			t.Fatalf("failed to delete user: %v", err)
		}

		if _, err := repo.Get(ctx, user.ID()); err == nil {
			t.Error("expected error when getting deleted user")
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := NewUserRepository(setupTestDB(t))
		createUser(t, repo, "one", "user1@example.com")
		createUser(t, repo, "two", "user2@example.com")
		createUser(t, repo, "three", "user3@example.com")

		retrieved, err := repo.List(ctx, map[string]any{})
		if err != nil {
			t.Fatalf("failed to list users: %v", err)
		}
		if len(retrieved) != 3 {
			t.Errorf("expected 3 users, got %d", len(retrieved))
		}

		filtered, err := repo.List(ctx, map[string]any{"email": "user2@example.com"})
		if err != nil {
			t.Fatalf("failed to list filtered users: %v", err)
		}
		if len(filtered) != 1 || filtered[0].Username() != "two" {
			t.Errorf("expected only user two, got %v", filtered)
		}
	})
}

func TestAudioRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatePair", func(t *testing.T) {
		db := setupTestDB(t)
		user := createUser(t, NewUserRepository(db), "singer", "singer@example.com")
		repo := NewAudioRepository(db)

		original, transformed := newPair(user.ID(), "take1.wav", time.Now().UTC())
		if err := repo.CreatePair(ctx, original, transformed); err != nil {
			t.Fatalf("failed to create pair: %v", err)
		}

		if original.ID() == "" || transformed.ID() == "" {
			t.Fatal("expected both rows to receive IDs")
		}
		if transformed.PairID() != original.ID() {
			t.Errorf("expected transformed pair_id %s, got %s", original.ID(), transformed.PairID())
		}

		stored, err := repo.Get(ctx, transformed.ID())
		if err != nil {
			t.Fatalf("failed to get transformed row: %v", err)
		}
		if stored.PairID() != original.ID() {
			t.Errorf("stored pair_id = %s, want %s", stored.PairID(), original.ID())
		}
		if !stored.IsSaved() {
			t.Error("expected stored row to be saved")
		}

		storedOriginal, err := repo.Get(ctx, original.ID())
		if err != nil {
			t.Fatalf("failed to get original row: %v", err)
		}
		if storedOriginal.PairID() != "" {
			t.Errorf("original should not carry a pair_id, got %s", storedOriginal.PairID())
		}
	})

	t.Run("ListPairs", func(t *testing.T) {
		db := setupTestDB(t)
		users := NewUserRepository(db)
		singer := createUser(t, users, "singer", "singer@example.com")
		other := createUser(t, users, "other", "other@example.com")
		repo := NewAudioRepository(db)

		base := time.Date(2024, 11, 2, 12, 0, 0, 0, time.UTC)
		first, firstT := newPair(singer.ID(), "first.wav", base)
		second, secondT := newPair(singer.ID(), "second.wav", base.Add(time.Minute))
		theirs, theirsT := newPair(other.ID(), "theirs.wav", base)

		for _, p := range [][2]*models.AudioFile{{first, firstT}, {second, secondT}, {theirs, theirsT}} {
			if err := repo.CreatePair(ctx, p[0], p[1]); err != nil {
				t.Fatalf("failed to create pair: %v", err)
			}
		}

		pairs, err := repo.ListPairs(ctx, singer.ID())
		if err != nil {
			t.Fatalf("failed to list pairs: %v", err)
		}

		want := []models.AudioPair{
			{OriginalID: second.ID(), OriginalURL: second.URL(), TransformedID: secondT.ID(), TransformedURL: secondT.URL()},
			{OriginalID: first.ID(), OriginalURL: first.URL(), TransformedID: firstT.ID(), TransformedURL: firstT.URL()},
		}
		if diff := cmp.Diff(want, pairs, cmpopts.IgnoreFields(models.AudioPair{}, "CreatedAt")); diff != "" {
			t.Errorf("pairs mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("ListPairs Empty", func(t *testing.T) {
		db := setupTestDB(t)
		user := createUser(t, NewUserRepository(db), "singer", "singer@example.com")

		pairs, err := NewAudioRepository(db).ListPairs(ctx, user.ID())
		if err != nil {
			t.Fatalf("failed to list pairs: %v", err)
		}
		if pairs == nil || len(pairs) != 0 {
			t.Errorf("expected empty non-nil slice, got %#v", pairs)
		}
	})

	t.Run("List", func(t *testing.T) {
		db := setupTestDB(t)
		user := createUser(t, NewUserRepository(db), "singer", "singer@example.com")
		repo := NewAudioRepository(db)

		original, transformed := newPair(user.ID(), "take.wav", time.Now().UTC())
		if err := repo.CreatePair(ctx, original, transformed); err != nil {
			t.Fatalf("failed to create pair: %v", err)
		}

		all, err := repo.List(ctx, map[string]any{"user_id": user.ID()})
		if err != nil {
			t.Fatalf("failed to list audio: %v", err)
		}
		if len(all) != 2 {
			t.Errorf("expected 2 rows, got %d", len(all))
		}

		originals, err := repo.List(ctx, map[string]any{"user_id": user.ID(), "file_type": models.FileTypeOriginal})
		if err != nil {
			t.Fatalf("failed to list originals: %v", err)
		}
		if len(originals) != 1 || originals[0].ID() != original.ID() {
			t.Errorf("expected only the original, got %v", originals)
		}
	})

	t.Run("DeletePair", func(t *testing.T) {
		db := setupTestDB(t)
		user := createUser(t, NewUserRepository(db), "singer", "singer@example.com")
		repo := NewAudioRepository(db)

		original, transformed := newPair(user.ID(), "take.wav", time.Now().UTC())
		if err := repo.CreatePair(ctx, original, transformed); err != nil {
			t.Fatalf("failed to create pair: %v", err)
		}

		deleted, err := repo.DeletePair(ctx, user.ID(), original.ID())
		if err != nil {
			t.Fatalf("failed to delete pair: %v", err)
		}

		keys := []string{}
		for _, f := range deleted {
			keys = append(keys, f.ObjectKey())
		}
		want := []string{original.ObjectKey(), transformed.ObjectKey()}
		if diff := cmp.Diff(want, keys); diff != "" {
			t.Errorf("deleted keys mismatch (-want +got):\n%s", diff)
		}

		remaining, err := repo.List(ctx, map[string]any{"user_id": user.ID()})
		if err != nil {
			t.Fatalf("failed to list audio: %v", err)
		}
		if len(remaining) != 0 {
			t.Errorf("expected no rows after delete, got %d", len(remaining))
		}
	})
}
