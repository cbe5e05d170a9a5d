package services

import (
	"testing"

	"despensa/internal/testutil"
)

func TestCreateUser(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewUserService(db)

		user, err := svc.CreateUser("maria", "Maria@Test.com", "secret123", false)
		testutil.AssertNoError(t, err)

		if user.ID == "" {
			t.Fatal("expected non-empty user ID")
		}
		if user.Email != "maria@test.com" {
			t.Errorf("email should be lowercased, got %s", user.Email)
		}
		if user.PasswordHash == "secret123" {
			t.Error("password must be hashed")
		}
	})

	t.Run("duplicate_username", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewUserService(db)

		_, err := svc.CreateUser("maria", "maria@test.com", "secret123", false)
		testutil.AssertNoError(t, err)

		_, err = svc.CreateUser("maria", "other@test.com", "secret123", false)
		testutil.AssertAppError(t, err, "DUPLICATE_USER")
	})

	t.Run("short_password", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewUserService(db)

		_, err := svc.CreateUser("maria", "maria@test.com", "abc", false)
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})
}

func TestAttemptLogin(t *testing.T) {
	t.Run("valid_credentials", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewUserService(db)
		user := testutil.CreateTestUserWithName(t, db, "maria")

		got, err := svc.AttemptLogin("maria", "password123")
		testutil.AssertNoError(t, err)
		if got.ID != user.ID {
			t.Errorf("expected user %s, got %s", user.ID, got.ID)
		}
	})

	t.Run("wrong_password", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewUserService(db)
		testutil.CreateTestUserWithName(t, db, "maria")

		_, err := svc.AttemptLogin("maria", "nope")
		testutil.AssertAppError(t, err, "INVALID_CREDENTIALS")
	})

	t.Run("unknown_user_same_error", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewUserService(db)

		_, err := svc.AttemptLogin("ghost", "password123")
		testutil.AssertAppError(t, err, "INVALID_CREDENTIALS")
	})
}

func TestUpdateUser(t *testing.T) {
	t.Run("partial_update", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewUserService(db)
		user := testutil.CreateTestUser(t, db)

		name := "renamed"
		updated, err := svc.UpdateUser(user.ID, &name, nil, nil, nil)
		testutil.AssertNoError(t, err)
		if updated.Username != "renamed" {
			t.Errorf("expected renamed, got %s", updated.Username)
		}
		if updated.Email != user.Email {
			t.Error("email should be unchanged")
		}
	})

	t.Run("duplicate_username", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewUserService(db)
		testutil.CreateTestUserWithName(t, db, "maria")
		user := testutil.CreateTestUserWithName(t, db, "jose")

		name := "maria"
		_, err := svc.UpdateUser(user.ID, &name, nil, nil, nil)
		testutil.AssertAppError(t, err, "DUPLICATE_USER")
	})
}

func TestDeleteUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewUserService(db)
	user := testutil.CreateTestUser(t, db)

	testutil.AssertNoError(t, svc.DeleteUser(user.ID))

	_, err := svc.GetUserByID(user.ID)
	testutil.AssertAppError(t, err, "USER_NOT_FOUND")

	err = svc.DeleteUser(user.ID)
	testutil.AssertAppError(t, err, "USER_NOT_FOUND")
}
