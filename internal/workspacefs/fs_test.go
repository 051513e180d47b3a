package workspacefs

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWorkspaceFS_WriteReadList(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := fs.Write("nested/dir/file.txt", []byte("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := fs.Read("nested/dir/file.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("got %q", data)
	}

	names, err := fs.List("nested/dir")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 1 || names[0] != "file.txt" {
		t.Fatalf("got %v", names)
	}

	exists, err := fs.Exists("nested/dir/file.txt")
	if err != nil || !exists {
		t.Fatalf("expected file to exist, err=%v exists=%v", err, exists)
	}

	if err := fs.Delete("nested"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	exists, err = fs.Exists("nested/dir/file.txt")
	if err != nil || exists {
		t.Fatalf("expected file removed, err=%v exists=%v", err, exists)
	}
}

func TestWorkspaceFS_RejectsPathEscape(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = fs.Read("../../etc/passwd")
	if !errors.As(err, new(*PathEscape)) {
		t.Fatalf("expected PathEscape, got %v", err)
	}
	if err := fs.Write("../escape.txt", []byte("x")); !errors.As(err, new(*PathEscape)) {
		t.Fatalf("expected PathEscape, got %v", err)
	}
}

func TestWorkspaceFS_RejectsAbsoluteEscape(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := fs.Read("/etc/passwd"); !errors.As(err, new(*PathEscape)) {
		t.Fatalf("expected PathEscape, got %v", err)
	}
}

func TestCodeExecTool_RunSucceeds(t *testing.T) {
	fs, _ := New(t.TempDir())
	tool := NewCodeExecTool(fs, CodeExecConfig{Timeout: 5 * time.Second})

	result, err := tool.Run(context.Background(), "echo", []string{"hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TimedOut {
		t.Fatal("expected command to finish before timeout")
	}
	if result.ExitCode != 0 {
		t.Fatalf("got exit code %d, stderr=%s", result.ExitCode, result.Stderr)
	}
}

func TestCodeExecTool_RunKillsOnTimeout(t *testing.T) {
	fs, _ := New(t.TempDir())
	tool := NewCodeExecTool(fs, CodeExecConfig{Timeout: 50 * time.Millisecond})

	result, err := tool.Run(context.Background(), "sleep", []string{"5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.TimedOut {
		t.Fatal("expected command to time out")
	}
}

func TestCodeExecTool_RejectsUnsafeCommand(t *testing.T) {
	fs, _ := New(t.TempDir())
	tool := NewCodeExecTool(fs, CodeExecConfig{})
	if _, err := tool.Run(context.Background(), "echo hi; rm -rf /", nil); err == nil {
		t.Fatal("expected unsafe command to be rejected")
	}
}
