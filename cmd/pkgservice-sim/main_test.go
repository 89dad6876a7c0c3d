package main

import (
	"strings"
	"testing"
)

const mainTestPrefix = "cmd/pkgservice-sim:main_test"

func TestUsage_ContainsCommands(t *testing.T) {
	required := []string{"serve", "migrate", "ensure-db", "clear", "seed", "DATABASE_URL", "PKGSVC_CATALOG_FILE"}
	for _, word := range required {
		if !strings.Contains(usage, word) {
			t.Errorf("%s - usage should contain %q", mainTestPrefix, word)
		}
	}
}

func TestTargetDatabaseURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		dbName  string
		want    string
		wantErr bool
	}{
		{
			name:   "replaces database and keeps query",
			in:     "postgres://user:pw@db:5432/pkgservice?sslmode=disable",
			dbName: "pkgservice_test",
			want:   "postgres://user:pw@db:5432/pkgservice_test?sslmode=disable",
		},
		{
			name:   "adds database when missing",
			in:     "postgres://user@localhost",
			dbName: "other",
			want:   "postgres://user@localhost/other",
		},
		{name: "empty url", in: "", dbName: "x", wantErr: true},
		{name: "unparseable url", in: "postgres://%zz", dbName: "x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := targetDatabaseURL(tt.in, tt.dbName)
			if (err != nil) != tt.wantErr {
				t.Fatalf("%s - err = %v, wantErr %v", mainTestPrefix, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("%s - got %q, want %q", mainTestPrefix, got, tt.want)
			}
		})
	}
}
