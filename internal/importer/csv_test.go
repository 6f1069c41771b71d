package importer

import (
	"strings"
	"testing"
)

func TestParseContacts_NormalizesAndDedupes(t *testing.T) {
	input := `name,phone,email
Maria,+55 11 91234-5678,maria@example.com
Joao,5511912345678,joao@example.com
Ana,(11) 98765-4321,
`
	result, err := ParseContacts(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 unique contacts, got %d", len(result.Rows))
	}
	if result.Skipped != 1 {
		t.Errorf("duplicate phone counts as skipped, got %d", result.Skipped)
	}
	if result.Rows[0].Phone != "5511912345678" || result.Rows[0].Name != "Maria" {
		t.Errorf("unexpected first row: %+v", result.Rows[0])
	}
	if result.Rows[1].Phone != "11987654321" {
		t.Errorf("expected normalized phone, got %q", result.Rows[1].Phone)
	}
}

func TestParseContacts_HeaderOrderIsFree(t *testing.T) {
	input := `telefone,nome
+55 21 99999-0000,Carlos
`
	result, err := ParseContacts(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("expected 1 contact, got %d", len(result.Rows))
	}
	if result.Rows[0].Name != "Carlos" {
		t.Errorf("localized headers should map, got %+v", result.Rows[0])
	}
}

func TestParseContacts_BadRowsAreCountedNotFatal(t *testing.T) {
	input := `phone,name
5511912345678,Maria
not-a-phone,Broken
,Empty
5521999990000,Carlos
`
	result, err := ParseContacts(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 good contacts, got %d", len(result.Rows))
	}
	if result.Skipped != 2 {
		t.Errorf("expected 2 skipped rows, got %d", result.Skipped)
	}
}

func TestParseContacts_MissingPhoneColumn(t *testing.T) {
	input := `name,email
Maria,maria@example.com
`
	if _, err := ParseContacts(strings.NewReader(input)); err == nil {
		t.Fatal("a list without a phone column is unusable and must error")
	}
}
