package casdoor

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/redis/go-redis/v9"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

type fakeClient struct {
	users map[string]*casdoorsdk.User
	calls int
	err   error
}

func (f *fakeClient) GetUserByUserId(id string) (*casdoorsdk.User, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.users[id], nil
}

func TestRoleMapping(t *testing.T) {
	tests := []struct {
		name  string
		user  *casdoorsdk.User
		wantR models.UserRole
	}{
		{"no roles", &casdoorsdk.User{}, models.RoleStudent},
		{"is admin flag", &casdoorsdk.User{IsAdmin: true}, models.RoleAdmin},
		{"paid", &casdoorsdk.User{Roles: []*casdoorsdk.Role{{Name: "Premium"}}}, models.RolePaid},
		{"teacher beats paid", &casdoorsdk.User{Roles: []*casdoorsdk.Role{{Name: "paid"}, {Name: "instructor"}}}, models.RoleTeacher},
		{"unknown role", &casdoorsdk.User{Roles: []*casdoorsdk.Role{{Name: "guest"}}}, models.RoleStudent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := convertCasdoorRolesToModel(tt.user); got != tt.wantR {
				t.Errorf("role = %q, want %q", got, tt.wantR)
			}
		})
	}
}

func TestGetByIDCachesLookups(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	client := &fakeClient{users: map[string]*casdoorsdk.User{
		"u1": {Id: "u1", Name: "alice", DisplayName: "Alice", Email: "alice@example.com"},
	}}
	repo := newUserCasdoor(client, rdb)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		user, err := repo.GetByID(ctx, "u1")
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if user.DisplayName() != "Alice" {
			t.Errorf("DisplayName = %q", user.DisplayName())
		}
	}
	if client.calls != 1 {
		t.Errorf("casdoor called %d times, want 1", client.calls)
	}
}

func TestGetByIDsSkipsUnknownUsers(t *testing.T) {
	client := &fakeClient{users: map[string]*casdoorsdk.User{
		"u1": {Id: "u1", Email: "a@example.com"},
	}}
	repo := newUserCasdoor(client, nil)

	users, err := repo.GetByIDs(context.Background(), []string{"u1", "missing", "u1"})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(users) != 1 || users[0].ID != "u1" {
		t.Fatalf("users = %+v", users)
	}

	client.err = errors.New("casdoor down")
	if _, err := repo.GetByIDs(context.Background(), []string{"u2"}); err == nil {
		t.Error("expected transport error to surface")
	}
}
