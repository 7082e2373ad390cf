package token

import "testing"

func TestSimpleCounter_Normal(t *testing.T) {
	c := NewSimpleCounter()
	count := c.Count("hello world", "you are a helpful assistant")
	if count <= 0 {
		t.Fatalf("expected positive token count, got %d", count)
	}
}

func TestSimpleCounter_EmptyMessages(t *testing.T) {
	c := NewSimpleCounter()
	if count := c.Count(); count != 0 {
		t.Fatalf("expected 0 for no content, got %d", count)
	}
	if count := c.Count(""); count != 0 {
		t.Fatalf("expected 0 for empty string, got %d", count)
	}
}

func TestSimpleCounter_LargeContent(t *testing.T) {
	c := NewSimpleCounter()
	longContent := make([]byte, 10000)
	for i := range longContent {
		longContent[i] = 'a'
	}
	count := c.Count(string(longContent))
	if count <= 0 {
		t.Fatalf("expected positive token count for large content, got %d", count)
	}
	if count != Estimate(string(longContent)) {
		t.Fatalf("expected count to match Estimate, got %d vs %d", count, Estimate(string(longContent)))
	}
}
