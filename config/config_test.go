package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "commentsd.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("COMMENTS_STORE", "memory")

	got, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	want := Default()
	want.Store = StoreMemory
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
store = "postgres"

[server]
addr = ":9000"
read_timeout = "5s"
cors_origins = ["https://blog.test"]

[database]
url = "postgres://file"

[redis]
url = "redis://localhost:6379/0"
page_ttl = "2m"

[auth]
jwt_secret = "from-file"

[log]
level = "debug"
format = "json"
`)
	t.Setenv("COMMENTS_DATABASE_URL", "postgres://env")
	t.Setenv("COMMENTS_CORS_ORIGINS", "https://a.test, https://b.test,")
	t.Setenv("COMMENTS_REDIS_PAGE_TTL", "30s")

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if got.Server.Addr != ":9000" || got.Server.ReadTimeout != 5*time.Second {
		t.Errorf("Got server %+v", got.Server)
	}
	if got.Server.WriteTimeout != 30*time.Second {
		t.Errorf("Got write timeout %v, want the default", got.Server.WriteTimeout)
	}
	if got.Database.URL != "postgres://env" {
		t.Errorf("Got database url %q, want the env value", got.Database.URL)
	}
	if diff := cmp.Diff([]string{"https://a.test", "https://b.test"}, got.Server.CORSOrigins); diff != "" {
		t.Errorf("CORS origins mismatch (-want +got):\n%s", diff)
	}
	if got.Redis.URL != "redis://localhost:6379/0" || got.Redis.PageTTL != 30*time.Second {
		t.Errorf("Got redis %+v", got.Redis)
	}
	if got.Auth.JWTSecret != "from-file" {
		t.Errorf("Got secret %q", got.Auth.JWTSecret)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		file    string
		wantErr string
	}{
		{
			name:    "PostgresWithoutURL",
			wantErr: "COMMENTS_DATABASE_URL is required",
		},
		{
			name:    "UnknownStore",
			env:     map[string]string{"COMMENTS_STORE": "sqlite"},
			wantErr: `unknown store "sqlite"`,
		},
		{
			name:    "BadDuration",
			env:     map[string]string{"COMMENTS_STORE": "memory", "COMMENTS_SERVER_READ_TIMEOUT": "soon"},
			wantErr: "COMMENTS_SERVER_READ_TIMEOUT",
		},
		{
			name:    "BadLogFormat",
			env:     map[string]string{"COMMENTS_STORE": "memory", "COMMENTS_LOG_FORMAT": "xml"},
			wantErr: `unknown log format "xml"`,
		},
		{
			name:    "BadLogLevel",
			env:     map[string]string{"COMMENTS_STORE": "memory", "COMMENTS_LOG_LEVEL": "loud"},
			wantErr: "log level",
		},
		{
			name:    "MalformedFile",
			file:    `store = `,
			wantErr: "read config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, tt.file)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Got error %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Got no error for a missing config file")
	}
}

func TestLog_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := Log{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("Got log output %s", out)
	}
}
