package agent

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseApprovalPolicy(t *testing.T) {
	tests := []struct {
		input    string
		expected ApprovalPolicy
		wantErr  bool
	}{
		{"", ApprovalSuggest, false},
		{"suggest", ApprovalSuggest, false},
		{"auto-edit", ApprovalAutoEdit, false},
		{"full-auto", ApprovalFullAuto, false},
		{"yolo", "", true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			got, err := ParseApprovalPolicy(test.input)
			if test.wantErr {
				if !errors.Is(err, ErrInvalidApprovalPolicy) {
					t.Errorf("Expected ErrInvalidApprovalPolicy, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != test.expected {
				t.Errorf("Expected %q, got %q", test.expected, got)
			}
		})
	}
}

func TestConfirmationFor(t *testing.T) {
	patch := []string{"apply_patch", "*** Begin Patch"}
	shell := []string{"rm", "-rf", "build"}

	if d := ConfirmationFor(ApprovalFullAuto)(shell); d != ReviewYes {
		t.Errorf("full-auto should approve shell command, got %q", d)
	}
	if d := ConfirmationFor(ApprovalAutoEdit)(patch); d != ReviewYes {
		t.Errorf("auto-edit should approve apply_patch, got %q", d)
	}
	if d := ConfirmationFor(ApprovalAutoEdit)(shell); d != ReviewNoContinue {
		t.Errorf("auto-edit should decline shell command, got %q", d)
	}
	if d := ConfirmationFor(ApprovalSuggest)(patch); d != ReviewNoContinue {
		t.Errorf("suggest should decline everything, got %q", d)
	}
	if d := ConfirmationFor(ApprovalAutoEdit)(nil); d != ReviewNoContinue {
		t.Errorf("empty command should be declined, got %q", d)
	}
}

func TestNewInputItemTextOnly(t *testing.T) {
	item, err := NewInputItem("hello", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if item.Type != ItemTypeMessage || item.Role != RoleUser {
		t.Errorf("Unexpected item header %q/%q", item.Type, item.Role)
	}
	if len(item.Content) != 1 || item.Content[0].Type != ContentInputText {
		t.Fatalf("Expected a single input_text part, got %+v", item.Content)
	}
	if item.Text() != "hello" {
		t.Errorf("Expected text hello, got %q", item.Text())
	}
}

func TestNewInputItemImages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shot.png")
	if err := os.WriteFile(path, []byte("png-bytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	item, err := NewInputItem("look", []string{"https://example.com/a.jpg", path})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(item.Content) != 3 {
		t.Fatalf("Expected 3 content parts, got %d", len(item.Content))
	}
	if item.Content[1].ImageURL != "https://example.com/a.jpg" {
		t.Errorf("URL should pass through, got %q", item.Content[1].ImageURL)
	}

	want := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	if item.Content[2].ImageURL != want {
		t.Errorf("Expected inline data URL, got %q", item.Content[2].ImageURL)
	}
}

func TestNewInputItemMissingImage(t *testing.T) {
	_, err := NewInputItem("look", []string{filepath.Join(t.TempDir(), "nope.png")})
	if !errors.Is(err, ErrInvalidImage) {
		t.Errorf("Expected ErrInvalidImage, got %v", err)
	}
}

func TestItemText(t *testing.T) {
	item := Item{Content: []ContentPart{
		{Type: ContentOutputText, Text: "one"},
		{Type: ContentInputImage, ImageURL: "data:"},
		{Type: ContentOutputText, Text: "two"},
	}}
	if got := item.Text(); !strings.Contains(got, "one\ntwo") {
		t.Errorf("Unexpected text %q", got)
	}
}
