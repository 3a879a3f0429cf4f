package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDotEnv(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    map[string]string
		wantErr bool
	}{
		{
			name:    "basic",
			content: "# comment\nHTTP=:9000\n\nLOG_LEVEL = debug\nnoequals\n",
			want:    map[string]string{"HTTP": ":9000", "LOG_LEVEL": "debug"},
		},
		{
			name:    "double quoted",
			content: `JWT_SECRET="a b=c"` + "\n",
			want:    map[string]string{"JWT_SECRET": "a b=c"},
		},
		{
			name:    "single quoted",
			content: "JWT_SECRET='x'\n",
			wantErr: true,
		},
		{
			name:    "unbalanced",
			content: "JWT_SECRET='x\n",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			got, err := loadDotEnv(dir)
			if (err != nil) != tt.wantErr {
				t.Fatalf("loadDotEnv() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("loadDotEnv() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("missing", func(t *testing.T) {
		got, err := loadDotEnv(t.TempDir())
		if err != nil || len(got) != 0 {
			t.Errorf("loadDotEnv() = %v, %v", got, err)
		}
	})
}
