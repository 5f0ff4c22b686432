package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edgeee/commentsystem/widget"
	"github.com/golang-jwt/jwt/v5"
	"github.com/neilotoole/slogt"
)

var (
	testNow  = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	testUser = widget.User{ID: "u1", DisplayName: "Avery", PhotoURL: "https://img/avery.png"}
)

func newAuthority() *Authority {
	return &Authority{
		Secret: []byte("s3cret"),
		Issuer: "identity.test",
		Now:    func() time.Time { return testNow },
	}
}

func TestAuthority_IssueVerify(t *testing.T) {
	a := newAuthority()
	token, err := a.Issue(testUser, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	got, err := a.Verify(token)
	if err != nil {
		t.Fatal(err)
	}
	if got != testUser {
		t.Errorf("Got user %+v, want %+v", got, testUser)
	}
	if got.Author() != (widget.Author{Name: "Avery", Photo: "https://img/avery.png"}) {
		t.Errorf("Got author %+v", got.Author())
	}
}

func TestAuthority_VerifyRejects(t *testing.T) {
	a := newAuthority()
	valid, _ := a.Issue(testUser, time.Hour)
	expired, _ := a.Issue(testUser, -time.Minute)
	otherKey, _ := (&Authority{Secret: []byte("other"), Issuer: "identity.test", Now: a.Now}).Issue(testUser, time.Hour)
	otherIssuer, _ := (&Authority{Secret: a.Secret, Issuer: "elsewhere", Now: a.Now}).Issue(testUser, time.Hour)
	noName, _ := a.Issue(widget.User{ID: "u2"}, time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1", "name": "x"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"Garbage":     "not-a-token",
		"Expired":     expired,
		"WrongKey":    otherKey,
		"WrongIssuer": otherIssuer,
		"NoName":      noName,
		"AlgNone":     none,
		"Tampered":    valid + "x",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := a.Verify(token)
			var ae *widget.AuthError
			if !errors.As(err, &ae) {
				t.Errorf("Got error %v, want AuthError", err)
			}
		})
	}
}

func TestAuthority_NoSecret(t *testing.T) {
	a := &Authority{}
	if _, err := a.Verify("x"); err == nil {
		t.Error("Got no error without a secret")
	}
	if _, err := a.Issue(testUser, time.Hour); err == nil {
		t.Error("Issued a token without a secret")
	}
}

func TestMiddleware(t *testing.T) {
	a := newAuthority()
	token, _ := a.Issue(testUser, time.Hour)

	tests := []struct {
		name     string
		header   string
		wantUser string
		wantErr  error
	}{
		{name: "Anonymous", wantErr: widget.ErrNotSignedIn},
		{name: "Valid", header: "Bearer " + token, wantUser: "Avery"},
		{name: "LowercaseScheme", header: "bearer " + token, wantUser: "Avery"},
		{name: "Invalid", header: "Bearer nope", wantErr: &widget.AuthError{}},
		{name: "OtherScheme", header: "Basic abc", wantErr: widget.ErrNotSignedIn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				gotUser widget.User
				gotErr  error
			)
			h := a.Middleware(slogt.New(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser, gotErr = FromContext(r.Context())
			}))
			req := httptest.NewRequest("GET", "/comments", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if gotUser.DisplayName != tt.wantUser {
				t.Errorf("Got user %q, want %q", gotUser.DisplayName, tt.wantUser)
			}
			switch want := tt.wantErr.(type) {
			case nil:
				if gotErr != nil {
					t.Errorf("Got error %v", gotErr)
				}
			case *widget.AuthError:
				var ae *widget.AuthError
				if !errors.As(gotErr, &ae) {
					t.Errorf("Got error %v, want AuthError", gotErr)
				}
			default:
				if !errors.Is(gotErr, want) {
					t.Errorf("Got error %v, want %v", gotErr, want)
				}
			}
		})
	}
}

func TestFromContext_WithUser(t *testing.T) {
	ctx := WithUser(httptest.NewRequest("GET", "/", nil).Context(), testUser)
	u, err := FromContext(ctx)
	if err != nil || u != testUser {
		t.Errorf("Got %+v, %v", u, err)
	}
}
