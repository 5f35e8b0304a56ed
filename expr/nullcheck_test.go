package expr

import (
	"testing"

	"github.com/gnemet/gridquery/fieldpath"
)

type level int

type grandChild struct {
	Name *string
}

type child struct {
	Name       *string
	GrandChild *grandChild
	Level      level
}

type parent struct {
	Child *child
	Level level
	Title string
}

func TestCreateNullChecks(t *testing.T) {
	tests := []struct {
		path      string
		skipFinal bool
		want      string
	}{
		{"Child", false, "(x.Child != nil)"},
		{"Child.Name", false, "((x.Child != nil) && (x.Child.Name != nil))"},
		{"Child.GrandChild.Name", false, "(((x.Child != nil) && (x.Child.GrandChild != nil)) && (x.Child.GrandChild.Name != nil))"},
		{"Child", true, "true"},
		{"Child.Name", true, "(x.Child != nil)"},
		{"Child.GrandChild.Name", true, "((x.Child != nil) && (x.Child.GrandChild != nil))"},
		{"Level", false, "true"},
		{"Child.Level", false, "(x.Child != nil)"},
		{"Title", true, "true"},
	}
	for _, tt := range tests {
		name := tt.path
		if tt.skipFinal {
			name += "/skip"
		}
		t.Run(name, func(t *testing.T) {
			p := fieldpath.MustNew[parent](tt.path)
			got := CreateNullChecks(p, tt.skipFinal)
			if got.String() != tt.want {
				t.Errorf("CreateNullChecks(%s, %v) = %s, want %s", tt.path, tt.skipFinal, got, tt.want)
			}
		})
	}
}

func TestNullChecksGuardEvaluation(t *testing.T) {
	p := fieldpath.MustNew[parent]("Child.GrandChild.Name")
	guard := Compile(CreateNullChecks(p, false))

	name := "x"
	tests := []struct {
		desc string
		item parent
		want bool
	}{
		{"nil child", parent{}, false},
		{"nil grandchild", parent{Child: &child{}}, false},
		{"nil name", parent{Child: &child{GrandChild: &grandChild{}}}, false},
		{"full", parent{Child: &child{GrandChild: &grandChild{Name: &name}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got, err := guard(tt.item)
			if err != nil {
				t.Fatalf("guard returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("guard = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNullChecksFor(t *testing.T) {
	p := fieldpath.MustNew[parent]("Child.Name")
	n := &Compare[parent]{Op: OpNotEqual, Left: &Member[parent]{Path: p}, Right: &Constant[parent]{}}
	if got := NullChecksFor[parent](n, true).String(); got != "(x.Child != nil)" {
		t.Errorf("NullChecksFor = %s", got)
	}
	if got := NullChecksFor[parent](&Constant[parent]{Value: 1}, false); !IsTrue(got) {
		t.Errorf("NullChecksFor without member = %s, want true", got)
	}
}
