package util

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestExecWithOutput(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr string
	}{
		{name: "trimmed stdout", args: []string{"-c", "printf '  java 17 \\n\\n'"}, want: "java 17"},
		{name: "work dir", args: []string{"-c", "pwd -P"}, want: dir},
		{name: "stderr in error", args: []string{"-c", "echo 'Unable to access jarfile' >&2; exit 1"}, wantErr: "sh: Unable to access jarfile"},
		{name: "exit status", args: []string{"-c", "exit 3"}, wantErr: "exit status 3"},
	}
	if real, err := filepath.EvalSymlinks(dir); err == nil {
		tests[1].want = real
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExecWithOutput(dir, "sh", tt.args...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecWithOutputMissingProgram(t *testing.T) {
	_, err := ExecWithOutput(".", "no-such-minecraft-launcher")
	if err == nil || !strings.HasPrefix(err.Error(), "no-such-minecraft-launcher:") {
		t.Errorf("err = %v", err)
	}
}
