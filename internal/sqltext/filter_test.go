package sqltext

import "testing"

func TestIsInsertLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line string
		want bool
	}{
		{line: "", want: false},
		{line: "-- INSERT INTO t (a) VALUES (1);", want: false},
		{line: "INSERT INTO t (a) VALUES (1);", want: true},
		{line: "insert into t (a) values (1);", want: true},
		{line: "INSERT INTO t (a) VALUES (1)", want: false},
		{line: "CREATE TABLE t (a int);", want: false},
		{line: "/*!40000 ALTER TABLE `t` DISABLE KEYS */;", want: false},
	}
	for _, tc := range tests {
		if got := IsInsertLine(tc.line); got != tc.want {
			t.Errorf("IsInsertLine(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
}

func TestDedup(t *testing.T) {
	t.Parallel()

	d := NewDedup()
	if d.Seen("INSERT INTO t (a) VALUES (1);") {
		t.Fatal("first statement reported as duplicate")
	}
	if d.Seen("INSERT INTO t (a) VALUES (2);") {
		t.Fatal("distinct statement reported as duplicate")
	}
	if !d.Seen("INSERT INTO t (a) VALUES (1);") {
		t.Fatal("repeated statement not detected")
	}
	if d.Len() != 2 {
		t.Fatalf("Len = %d, want 2", d.Len())
	}
}
