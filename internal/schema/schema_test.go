package schema

import (
	"strings"
	"testing"
)

func trackedKind(name string) Kind {
	return Kind{
		Name: name,
		Fields: []Field{
			{Name: IDField, Type: Integer},
			{Name: "title", Type: Text, Nullable: true},
			{Name: UpdatedAtField, Type: Timestamp, Nullable: true},
			{Name: SavedAtField, Type: Timestamp, Nullable: true},
		},
		TracksSaves: true,
	}
}

func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		wantErr string
	}{
		{
			name: "valid tracked kind",
			kind: trackedKind("links"),
		},
		{
			name:    "missing id",
			kind:    Kind{Name: "x", Fields: []Field{{Name: "title", Type: Text}}},
			wantErr: "missing id",
		},
		{
			name:    "nullable id",
			kind:    Kind{Name: "x", Fields: []Field{{Name: IDField, Type: Integer, Nullable: true}}},
			wantErr: "non-nullable integer",
		},
		{
			name: "tracked kind without saved_at",
			kind: Kind{
				Name: "x",
				Fields: []Field{
					{Name: IDField, Type: Integer},
					{Name: UpdatedAtField, Type: Timestamp},
				},
				TracksSaves: true,
			},
			wantErr: "require a saved_at",
		},
		{
			name: "tracked kind with text updated_at",
			kind: Kind{
				Name: "x",
				Fields: []Field{
					{Name: IDField, Type: Integer},
					{Name: UpdatedAtField, Type: Text},
					{Name: SavedAtField, Type: Timestamp},
				},
				TracksSaves: true,
			},
			wantErr: "must be a timestamp",
		},
		{
			name: "untracked kind may omit staleness fields",
			kind: Kind{Name: "x", Fields: []Field{{Name: IDField, Type: Integer}}},
		},
		{
			name: "duplicate field",
			kind: Kind{
				Name: "x",
				Fields: []Field{
					{Name: IDField, Type: Integer},
					{Name: "a", Type: Text},
					{Name: "a", Type: Text},
				},
			},
			wantErr: "duplicate field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().Register(tt.kind)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Register() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Register() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRegistry_RejectsDuplicateKind(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(trackedKind("links")); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	if err := r.Register(trackedKind("links")); err == nil {
		t.Error("second Register() expected error")
	}
}

func TestRegistry_KindsKeepOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"b", "a", "c"} {
		if err := r.Register(trackedKind(name)); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	var got []string
	for _, k := range r.Kinds() {
		got = append(got, k.Name)
	}
	if strings.Join(got, ",") != "b,a,c" {
		t.Errorf("Kinds() order = %v, want [b a c]", got)
	}

	if _, err := r.Kind("missing"); err == nil {
		t.Error("Kind(missing) expected error")
	}
}

func TestKind_Check(t *testing.T) {
	k := trackedKind("links")

	if err := k.Check(Record{IDField: int64(1), "title": "x"}); err != nil {
		t.Errorf("Check(valid) error = %v", err)
	}
	if err := k.Check(Record{IDField: 1}); err == nil {
		t.Error("Check(int id) expected type error")
	}
	if err := k.Check(Record{IDField: int64(1), "nope": "x"}); err == nil {
		t.Error("Check(unknown field) expected error")
	}
}

func TestRecord_Keys(t *testing.T) {
	r := Record{"z": "1", IDField: int64(1), "a": "2"}
	got := strings.Join(r.Keys(), ",")
	if got != "id,a,z" {
		t.Errorf("Keys() = %s, want id,a,z", got)
	}
}

func TestKind_MissingRequired(t *testing.T) {
	k := Kind{
		Name: "folders",
		Fields: []Field{
			{Name: IDField, Type: Integer},
			{Name: "course_id", Type: Integer},
			{Name: "name", Type: Text, Nullable: true},
		},
	}

	got := k.MissingRequired(Record{"name": "x"})
	if len(got) != 2 || got[0] != IDField || got[1] != "course_id" {
		t.Errorf("MissingRequired() = %v, want [id course_id]", got)
	}

	if got := k.MissingRequired(Record{IDField: int64(1), "course_id": int64(2)}); len(got) != 0 {
		t.Errorf("MissingRequired() = %v, want none", got)
	}
}
