package schema

import (
	"path/filepath"
	"testing"
)

const fixtureSQL = `
CREATE TABLE users (
	id SERIAL PRIMARY KEY,
	email VARCHAR(255) NOT NULL,
	bio TEXT
);

CREATE TABLE IF NOT EXISTS books (
	id SERIAL PRIMARY KEY,
	title VARCHAR(200) NOT NULL,
	author_id INTEGER NOT NULL REFERENCES users(id)
);

CREATE TABLE reviews (
	id SERIAL PRIMARY KEY,
	book_id INTEGER NOT NULL,
	reviewer_id INTEGER,
	body TEXT,
	FOREIGN KEY (book_id) REFERENCES books(id),
	FOREIGN KEY (reviewer_id) REFERENCES users(id)
);
`

func TestParseSQL(t *testing.T) {
	tables := ParseSQL(fixtureSQL)
	if len(tables) != 3 {
		t.Fatalf("expected 3 tables, got %d", len(tables))
	}

	users, ok := tables["users"]
	if !ok {
		t.Fatal("users table not found")
	}
	if users.PrimaryKey != "id" {
		t.Errorf("expected users PK 'id', got %q", users.PrimaryKey)
	}
	if len(users.Columns) != 3 {
		t.Fatalf("expected 3 user columns, got %d", len(users.Columns))
	}
	email, ok := users.Column("email")
	if !ok {
		t.Fatal("email column not found")
	}
	if email.Nullable {
		t.Error("email should be NOT NULL")
	}
	bio, _ := users.Column("bio")
	if !bio.Nullable {
		t.Error("bio should be nullable")
	}
}

func TestInlineReferences(t *testing.T) {
	tables := ParseSQL(fixtureSQL)
	books := tables["books"]

	author, ok := books.Column("author_id")
	if !ok {
		t.Fatal("author_id column not found")
	}
	if !author.IsFK || author.FKTable != "users" || author.FKColumn != "id" {
		t.Errorf("author_id FK not detected: %+v", author)
	}
	if len(books.Dependencies) != 1 || books.Dependencies[0] != "users" {
		t.Errorf("expected books to depend on users, got %v", books.Dependencies)
	}
}

func TestConstraintForeignKeys(t *testing.T) {
	tables := ParseSQL(fixtureSQL)
	reviews := tables["reviews"]

	if len(reviews.ForeignKeys) != 2 {
		t.Fatalf("expected 2 foreign keys, got %d", len(reviews.ForeignKeys))
	}
	bookID, _ := reviews.Column("book_id")
	if !bookID.IsFK || bookID.FKTable != "books" {
		t.Errorf("book_id FK not back-filled: %+v", bookID)
	}
	reviewerID, _ := reviews.Column("reviewer_id")
	if !reviewerID.IsFK || reviewerID.FKTable != "users" {
		t.Errorf("reviewer_id FK not back-filled: %+v", reviewerID)
	}
}

func TestTypeArgumentsWithCommas(t *testing.T) {
	tables := ParseSQL(`
CREATE TABLE products (
	id SERIAL PRIMARY KEY,
	name VARCHAR(120) NOT NULL,
	price NUMERIC(10, 2) NOT NULL
);
`)
	products, ok := tables["products"]
	if !ok {
		t.Fatal("products table not found")
	}
	if len(products.Columns) != 3 {
		t.Fatalf("expected 3 columns, got %d: %+v", len(products.Columns), products.Columns)
	}
	price, ok := products.Column("price")
	if !ok {
		t.Fatal("price column not found")
	}
	if price.Type != "NUMERIC(10, 2)" {
		t.Errorf("expected type NUMERIC(10, 2), got %q", price.Type)
	}
	if price.Nullable {
		t.Error("price should be NOT NULL")
	}
	if err := Validate(tables); err != nil {
		t.Errorf("valid schema rejected: %v", err)
	}
}

func TestCompositePrimaryKey(t *testing.T) {
	tables := ParseSQL(`
CREATE TABLE book_tags (
	book_id INTEGER NOT NULL,
	tag_id INTEGER NOT NULL,
	PRIMARY KEY (book_id, tag_id)
);
`)
	bt, ok := tables["book_tags"]
	if !ok {
		t.Fatal("book_tags table not found")
	}
	if len(bt.Columns) != 2 {
		t.Fatalf("expected 2 columns, got %d: %+v", len(bt.Columns), bt.Columns)
	}
	if err := Validate(tables); err != nil {
		t.Errorf("valid schema rejected: %v", err)
	}
}

func TestParseFilesUnreadable(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.sql")
	if _, err := ParseFiles([]string{missing}); err == nil {
		t.Fatal("expected error for unreadable schema file")
	}
}

func TestAutoIncrement(t *testing.T) {
	cases := []struct {
		col      Column
		provider string
		want     bool
	}{
		{Column{Name: "id", Type: "SERIAL", IsPK: true}, "postgresql", true},
		{Column{Name: "id", Type: "INTEGER", IsPK: true}, "sqlite", true},
		{Column{Name: "id", Type: "INTEGER", IsPK: true}, "postgresql", false},
		{Column{Name: "id", Type: "BIGINT AUTO_INCREMENT", IsPK: true}, "mysql", true},
		{Column{Name: "n", Type: "SERIAL", IsPK: false}, "postgresql", false},
		{Column{Name: "id", Type: "UUID", IsPK: true}, "postgresql", false},
	}
	for _, tc := range cases {
		if got := tc.col.AutoIncrement(tc.provider); got != tc.want {
			t.Errorf("AutoIncrement(%q %q on %s) = %v, want %v", tc.col.Name, tc.col.Type, tc.provider, got, tc.want)
		}
	}
}

func TestIsValidIdentifier(t *testing.T) {
	valid := []string{"users", "_private", "table_2"}
	invalid := []string{"", "2fast", "drop table;--", "a b"}

	for _, name := range valid {
		if !IsValidIdentifier(name) {
			t.Errorf("expected %q to be valid", name)
		}
	}
	for _, name := range invalid {
		if IsValidIdentifier(name) {
			t.Errorf("expected %q to be invalid", name)
		}
	}
}
