package blob

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type recorded struct {
	method      string
	path        string
	contentType string
	body        string
}

func newTestS3(t *testing.T, status int) (*S3, func() recorded) {
	t.Helper()
	var (
		mu  sync.Mutex
		got recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = recorded{method: r.Method, path: r.URL.Path, contentType: r.Header.Get("Content-Type"), body: string(b)}
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	s, err := NewS3(context.Background(), Config{
		Bucket:          "attachments-bucket",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	if err != nil {
		t.Fatalf("Could not create S3 store: %v", err)
	}
	return s, func() recorded {
		mu.Lock()
		defer mu.Unlock()
		return got
	}
}

func TestS3_Put(t *testing.T) {
	s, last := newTestS3(t, http.StatusOK)

	url, err := s.Put(context.Background(), "attachments/cat.png", io.NopCloser(strings.NewReader("png-bytes")), 9, "image/png")
	if err != nil {
		t.Fatal(err)
	}

	got := last()
	if got.method != http.MethodPut {
		t.Errorf("Got method %s, want PUT", got.method)
	}
	if got.path != "/attachments-bucket/attachments/cat.png" {
		t.Errorf("Got path %s", got.path)
	}
	if got.contentType != "image/png" {
		t.Errorf("Got content type %q", got.contentType)
	}
	if !strings.Contains(got.body, "png-bytes") {
		t.Errorf("Got body %q", got.body)
	}
	if want := s.cfg.Endpoint + "/attachments-bucket/attachments/cat.png"; url != want {
		t.Errorf("Got url %q, want %q", url, want)
	}
}

func TestS3_PutError(t *testing.T) {
	s, _ := newTestS3(t, http.StatusForbidden)

	if _, err := s.Put(context.Background(), "attachments/cat.png", strings.NewReader("x"), 1, "image/png"); err == nil {
		t.Error("Got no error for a rejected upload")
	}
}

func TestS3_URL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		key  string
		want string
	}{
		{
			name: "PublicBase",
			cfg:  Config{Bucket: "b", PublicBaseURL: "https://cdn.example.com/"},
			key:  "attachments/my file.png",
			want: "https://cdn.example.com/attachments/my%20file.png",
		},
		{
			name: "Endpoint",
			cfg:  Config{Bucket: "b", Endpoint: "http://minio:9000"},
			key:  "attachments/a.png",
			want: "http://minio:9000/b/attachments/a.png",
		},
		{
			name: "AWS",
			cfg:  Config{Bucket: "b", Region: "eu-west-1"},
			key:  "attachments/a.png",
			want: "https://b.s3.eu-west-1.amazonaws.com/attachments/a.png",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &S3{cfg: tt.cfg}
			if got := s.URL(tt.key); got != tt.want {
				t.Errorf("Got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewS3_RequiresBucket(t *testing.T) {
	if _, err := NewS3(context.Background(), Config{Region: "us-east-1"}); err == nil {
		t.Error("Got no error without a bucket")
	}
}
