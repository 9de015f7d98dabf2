package event

import (
	"reflect"
	"testing"
)

func TestDispatch_Bubbling(t *testing.T) {
	doc := NewTarget("document")
	host := NewTarget("host")
	host.SetParent(doc)
	el := NewTarget("element")
	el.SetParent(host)

	var order []string
	record := func(name string) Listener {
		return func(e *Event) {
			order = append(order, name+":"+e.CurrentTarget().Name)
		}
	}
	el.AddListener("ping", record("el"))
	host.AddListener("ping", record("host"))
	doc.AddListener("ping", record("doc"))

	if !el.Dispatch(New("ping", nil)) {
		t.Fatal("Expected listeners to run")
	}
	want := []string{"el:element", "host:host", "doc:document"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("Expected %v, got %v", want, order)
	}

	order = nil
	el.Dispatch(&Event{Type: "ping"})
	if !reflect.DeepEqual(order, []string{"el:element"}) {
		t.Errorf("Expected non-bubbling event to stay on target, got %v", order)
	}
}

func TestDispatch_ShadowBoundary(t *testing.T) {
	doc := NewTarget("document")
	root := NewTarget("shadow-root")
	root.SetShadowRoot(true)
	root.SetParent(doc)
	el := NewTarget("element")
	el.SetParent(root)

	tests := []struct {
		name     string
		composed bool
		wantDoc  int
	}{
		{"composed crosses the boundary", true, 1},
		{"non-composed stops at the shadow root", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docHits, rootHits := 0, 0
			removeDoc := doc.AddListener("x", func(*Event) { docHits++ })
			removeRoot := root.AddListener("x", func(*Event) { rootHits++ })
			defer removeDoc()
			defer removeRoot()

			el.Dispatch(&Event{Type: "x", Bubbles: true, Composed: tt.composed})
			if rootHits != 1 {
				t.Errorf("Expected shadow root listener to run once, got %d", rootHits)
			}
			if docHits != tt.wantDoc {
				t.Errorf("Expected %d document hits, got %d", tt.wantDoc, docHits)
			}
		})
	}
}

func TestDispatch_StopPropagation(t *testing.T) {
	parent := NewTarget("parent")
	child := NewTarget("child")
	child.SetParent(parent)

	second, parentHits := false, 0
	child.AddListener("x", func(e *Event) { e.StopPropagation() })
	child.AddListener("x", func(*Event) { second = true })
	parent.AddListener("x", func(*Event) { parentHits++ })

	child.Dispatch(New("x", nil))
	if !second {
		t.Error("Expected remaining listeners on the current target to run")
	}
	if parentHits != 0 {
		t.Errorf("Expected propagation to stop, parent ran %d times", parentHits)
	}
}

func TestAddListener_Remove(t *testing.T) {
	target := NewTarget("t")
	hits := 0
	remove := target.AddListener("x", func(*Event) { hits++ })
	target.AddListener("x", func(*Event) {})

	remove()
	remove()
	if target.ListenerCount("x") != 1 {
		t.Errorf("Expected 1 listener left, got %d", target.ListenerCount("x"))
	}
	target.Dispatch(New("x", nil))
	if hits != 0 {
		t.Errorf("Expected removed listener not to run, got %d", hits)
	}
}

func TestDispatch_DetailAndTarget(t *testing.T) {
	parent := NewTarget("parent")
	child := NewTarget("child")
	child.SetParent(parent)

	var gotTarget *Target
	var gotDetail any
	parent.AddListener("x", func(e *Event) {
		gotTarget = e.Target()
		gotDetail = e.Detail
	})

	child.Dispatch(New("x", 42))
	if gotTarget != child {
		t.Errorf("Expected event target to be the child, got %v", gotTarget)
	}
	if gotDetail != 42 {
		t.Errorf("Expected detail 42, got %v", gotDetail)
	}
	if child.Dispatch(New("unheard", nil)) {
		t.Error("Expected Dispatch to report no listeners")
	}
}
