package auth

import (
	"testing"
	"time"
)

func TestIssueParse(t *testing.T) {
	tok, err := Issue(42, RoleTeacher, "classroll", "secret", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	now := time.Now()
	nowFunc = func() time.Time { return now.Add(-2 * time.Hour) }
	expired, err := Issue(42, RoleTeacher, "classroll", "secret", time.Hour)
	nowFunc = time.Now // reset
	if err != nil {
		t.Fatalf("Issue(expired) error = %v", err)
	}

	tests := []struct {
		name    string
		token   string
		key     string
		issuer  string
		wantErr bool
	}{
		{name: "valid", token: tok.AccessToken, key: "secret", issuer: "classroll"},
		{name: "any issuer", token: tok.AccessToken, key: "secret"},
		{name: "wrong key", token: tok.AccessToken, key: "other", issuer: "classroll", wantErr: true},
		{name: "wrong issuer", token: tok.AccessToken, key: "secret", issuer: "elsewhere", wantErr: true},
		{name: "garbage", token: "not.a.token", key: "secret", wantErr: true},
		{name: "expired", token: expired.AccessToken, key: "secret", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := Parse(tt.token, tt.key, tt.issuer)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && (claims.UserID != 42 || claims.Role != RoleTeacher) {
				t.Errorf("Parse() claims = %+v", claims)
			}
		})
	}
}

func TestIssueRequiresKey(t *testing.T) {
	if _, err := Issue(1, RoleAdmin, "", "", time.Minute); err == nil {
		t.Fatal("Issue() without key succeeded")
	}
}
