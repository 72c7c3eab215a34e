package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"schema-migrator/internal/domain"
)

func TestParseRenames(t *testing.T) {
	got, err := parseRenames(
		[]string{"Account:User"},
		[]string{"User.name:displayName", "Post.body:content"},
	)
	if err != nil {
		t.Fatalf("parseRenames failed: %v", err)
	}
	want := domain.RenameMappings{
		Tables: []domain.TableRename{{From: "Account", To: "User"}},
		Columns: []domain.ColumnRename{
			{Table: "User", From: "name", To: "displayName"},
			{Table: "Post", From: "body", To: "content"},
		},
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("mappings mismatch (-want +got):\n%s", d)
	}
}

func TestParseRenames_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		tables  []string
		columns []string
	}{
		{"table without separator", []string{"Account"}, nil},
		{"table without target", []string{"Account:"}, nil},
		{"column without table", nil, []string{"name:displayName"}},
		{"column without target", nil, []string{"User.name:"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseRenames(tt.tables, tt.columns); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("want ErrValidation, got %v", err)
			}
		})
	}
}

func TestStdinPrompter(t *testing.T) {
	var out bytes.Buffer
	p := newStdinPrompter(strings.NewReader("y\nno\n"), &out)

	ok, err := p.ConfirmTableRename(domain.TableRename{From: "Account", To: "User"})
	if err != nil || !ok {
		t.Errorf("want the table rename to be confirmed, got %v, %v", ok, err)
	}
	ok, err = p.ConfirmColumnRename(domain.ColumnRename{Table: "User", From: "name", To: "displayName"})
	if err != nil || ok {
		t.Errorf("want the column rename to be declined, got %v, %v", ok, err)
	}
	if !strings.Contains(out.String(), `Was table "Account" renamed to "User"?`) {
		t.Errorf("unexpected prompt %q", out.String())
	}
}

func TestConfirmPending(t *testing.T) {
	pending := []*domain.Migration{{Identifier: "20240101000000_init"}}

	var out bytes.Buffer
	ok, err := confirmPending(strings.NewReader("yes\n"), &out)(context.Background(), pending)
	if err != nil || !ok {
		t.Errorf("want confirmation, got %v, %v", ok, err)
	}
	if !strings.Contains(out.String(), "20240101000000_init") {
		t.Errorf("want the pending list to be shown, got %q", out.String())
	}

	// 入力が無ければ取り消す
	ok, err = confirmPending(strings.NewReader(""), &out)(context.Background(), pending)
	if err != nil || ok {
		t.Errorf("want cancellation on empty input, got %v, %v", ok, err)
	}
}
