package mem

import (
	"context"
	"errors"
	"testing"
	"time"

	ab "github.com/rkolluri/authbridge"
)

func TestIdentityCRUD(t *testing.T) {
	store := NewIdentityStore()
	ctx := context.Background()

	identity := &ab.Identity{
		Username: "alice",
		Email:    "alice@example.com",
		Methods:  ab.NewMethodSet(ab.MethodPassword),
		IsActive: true,
	}
	if err := store.Create(ctx, identity); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if identity.ID == 0 {
		t.Fatal("expected an assigned id")
	}
	if identity.CreatedAt.IsZero() || identity.UpdatedAt.IsZero() {
		t.Error("expected timestamps stamped on create")
	}

	got, err := store.ByID(ctx, identity.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Username != "alice" {
		t.Errorf("expected alice, got %q", got.Username)
	}

	got.DisplayName = "Alice"
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	reloaded, _ := store.ByID(ctx, identity.ID)
	if reloaded.DisplayName != "Alice" {
		t.Error("expected update persisted")
	}

	if err := store.Delete(ctx, identity.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.ByID(ctx, identity.ID); !errors.Is(err, ab.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestLookupsReportAbsenceAsNil(t *testing.T) {
	store := NewIdentityStore()
	ctx := context.Background()

	for name, lookup := range map[string]func() (*ab.Identity, error){
		"username":   func() (*ab.Identity, error) { return store.ByUsername(ctx, "nobody") },
		"email":      func() (*ab.Identity, error) { return store.ByEmail(ctx, "nobody@example.com") },
		"phone":      func() (*ab.Identity, error) { return store.ByPhone(ctx, "+10000000000") },
		"subject":    func() (*ab.Identity, error) { return store.BySubject(ctx, ab.MethodGoogle, "missing") },
		"identifier": func() (*ab.Identity, error) { return store.ByAnyIdentifier(ctx, "nobody") },
	} {
		identity, err := lookup()
		if err != nil || identity != nil {
			t.Errorf("%s: expected (nil, nil) for a miss, got (%v, %v)", name, identity, err)
		}
	}

	// Empty values never match rows that have empty fields.
	blank := &ab.Identity{Username: "blank", Methods: ab.NewMethodSet(ab.MethodPassword)}
	if err := store.Create(ctx, blank); err != nil {
		t.Fatal(err)
	}
	if identity, _ := store.ByEmail(ctx, ""); identity != nil {
		t.Error("empty email must not match a row with no email")
	}
	if identity, _ := store.BySubject(ctx, ab.MethodPhone, ""); identity != nil {
		t.Error("empty subject must not match")
	}
}

func TestByAnyIdentifierOrder(t *testing.T) {
	store := NewIdentityStore()
	ctx := context.Background()

	// One identity's email equals another's username; username lookup wins.
	first := &ab.Identity{Username: "x@example.com", Methods: ab.NewMethodSet(ab.MethodPassword)}
	second := &ab.Identity{Username: "other", Email: "x@example.com", Methods: ab.NewMethodSet(ab.MethodPassword)}
	if err := store.Create(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := store.ByAnyIdentifier(ctx, "x@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != first.ID {
		t.Errorf("expected username match to win, got identity %d", got.ID)
	}
}

func TestUniqueConstraints(t *testing.T) {
	store := NewIdentityStore()
	ctx := context.Background()

	base := &ab.Identity{
		Username:      "taken",
		Email:         "taken@example.com",
		Phone:         "+15551230001",
		FirebaseUID:   "uid-taken",
		GoogleSubject: "sub-taken",
		Methods:       ab.NewMethodSet(ab.MethodPassword),
	}
	if err := store.Create(ctx, base); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		field    string
		identity ab.Identity
	}{
		{"username", ab.Identity{Username: "taken"}},
		{"email", ab.Identity{Username: "fresh1", Email: "taken@example.com"}},
		{"phone", ab.Identity{Username: "fresh2", Phone: "+15551230001"}},
		{"firebase_uid", ab.Identity{Username: "fresh3", FirebaseUID: "uid-taken"}},
		{"google_subject", ab.Identity{Username: "fresh4", GoogleSubject: "sub-taken"}},
	}
	for _, tc := range cases {
		err := store.Create(ctx, &tc.identity)
		var conflict *ab.ConflictError
		if !errors.As(err, &conflict) {
			t.Errorf("%s: expected ConflictError, got %v", tc.field, err)
			continue
		}
		if conflict.Field != tc.field {
			t.Errorf("expected conflict on %s, got %s", tc.field, conflict.Field)
		}
	}

	// Updating the row itself with its own values is not a conflict.
	base.DisplayName = "still me"
	if err := store.Update(ctx, base); err != nil {
		t.Errorf("self-update must not conflict, got %v", err)
	}
}

func TestStoreHandsOutClones(t *testing.T) {
	store := NewIdentityStore()
	ctx := context.Background()

	identity := &ab.Identity{Username: "clone", Methods: ab.NewMethodSet(ab.MethodPassword)}
	if err := store.Create(ctx, identity); err != nil {
		t.Fatal(err)
	}

	got, _ := store.ByID(ctx, identity.ID)
	got.Username = "mutated"
	got.Methods = got.Methods.With(ab.MethodGoogle)

	reloaded, _ := store.ByID(ctx, identity.ID)
	if reloaded.Username != "clone" || reloaded.Methods.Has(ab.MethodGoogle) {
		t.Error("mutating a returned identity must not affect stored state")
	}
}

func TestListPaging(t *testing.T) {
	store := NewIdentityStore()
	ctx := context.Background()

	for _, name := range []string{"a-one", "b-two", "c-three"} {
		if err := store.Create(ctx, &ab.Identity{Username: name, Methods: ab.NewMethodSet(ab.MethodPassword)}); err != nil {
			t.Fatal(err)
		}
	}

	page, err := store.List(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 identities, got %d", len(page))
	}
	// Ordered by id, so offset 1 starts at the second creation.
	if page[0].Username != "b-two" || page[1].Username != "c-three" {
		t.Errorf("unexpected page contents: %v, %v", page[0].Username, page[1].Username)
	}
}

func TestSessionStore(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	now := time.Now()

	sessions := []*ab.Session{
		{ID: "s1", IdentityID: 1, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
		{ID: "s2", IdentityID: 1, CreatedAt: now, ExpiresAt: now.Add(-time.Hour)},
		{ID: "s3", IdentityID: 2, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	}
	for _, s := range sessions {
		if err := store.Insert(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	// Expired rows are still returned; expiry is the caller's check.
	got, err := store.Get(ctx, "s2")
	if err != nil || got == nil {
		t.Fatalf("expected expired session returned, got (%v, %v)", got, err)
	}
	if !got.Expired(now) {
		t.Error("expected session reported expired")
	}

	deleted, err := store.DeleteExpired(ctx, now)
	if err != nil || deleted != 1 {
		t.Fatalf("expected 1 expired session deleted, got (%d, %v)", deleted, err)
	}

	if err := store.DeleteForIdentity(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if got, _ := store.Get(ctx, "s1"); got != nil {
		t.Error("expected identity 1 sessions removed")
	}
	if got, _ := store.Get(ctx, "s3"); got == nil {
		t.Error("expected identity 2 session untouched")
	}

	if err := store.Delete(ctx, "s3"); err != nil {
		t.Fatal(err)
	}
	if got, _ := store.Get(ctx, "s3"); got != nil {
		t.Error("expected session deleted")
	}
}
