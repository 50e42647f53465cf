package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	if got := Truncate("日本語のテキスト", 3); got != "日本語..." {
		t.Errorf("multi-byte: got %s", got)
	}
}

func TestClip(t *testing.T) {
	if got := Clip("résumé", 3); got != "rés" {
		t.Errorf("got %s", got)
	}
	if got := Clip("abc", 5); got != "abc" {
		t.Errorf("got %s", got)
	}
}
