package observe

import (
	"reflect"
	"runtime"
	"testing"
)

func TestObservePrimitivesPassThrough(t *testing.T) {
	cache := NewCache()
	tests := []struct {
		name  string
		value any
	}{
		{name: "nil", value: nil},
		{name: "string", value: "hello"},
		{name: "int", value: 42},
		{name: "float", value: 3.5},
		{name: "bool", value: true},
		{name: "nil map", value: map[string]any(nil)},
		{name: "nil slice", value: []any(nil)},
		{name: "typed map", value: map[string]int{"a": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Observe(tt.value, nil, cache)
			if !reflect.DeepEqual(got, tt.value) {
				t.Errorf("Observe(%v) = %v, want value unchanged", tt.value, got)
			}
			if _, ok := got.(*Facade); ok {
				t.Errorf("Observe(%v) returned a facade", tt.value)
			}
		})
	}
}

func TestObserveIdentity(t *testing.T) {
	cache := NewCache()
	hooks := &Hooks{}
	obj := map[string]any{"a": 1}

	first := Observe(obj, hooks, cache)
	second := Observe(obj, hooks, cache)
	if first != second {
		t.Fatal("observing the same map twice returned different facades")
	}

	arr := []any{1, 2, 3}
	if Observe(arr, hooks, cache) != Observe(arr, hooks, cache) {
		t.Fatal("observing the same slice twice returned different facades")
	}

	other := map[string]any{"a": 1}
	if Observe(other, hooks, cache) == first {
		t.Error("structurally equal but distinct maps shared a facade")
	}

	if Observe(first, hooks, cache) != first {
		t.Error("observing a facade should return it unchanged")
	}
}

func TestNestedFacadeIdentity(t *testing.T) {
	cache := NewCache()
	root := Observe(map[string]any{
		"user": map[string]any{"name": "ada"},
	}, nil, cache).(*Facade)

	a, ok := root.Get("user").(*Facade)
	if !ok {
		t.Fatalf("nested object not wrapped: %T", root.Get("user"))
	}
	b := root.Get("user").(*Facade)
	if a != b {
		t.Error("repeated nested reads returned different facades")
	}
	if got := a.Get("name"); got != "ada" {
		t.Errorf("name = %v, want ada", got)
	}
}

func TestCyclicGraphIsWrappedLazily(t *testing.T) {
	node := map[string]any{}
	node["self"] = node

	root := Observe(node, nil, NewCache()).(*Facade)
	inner := root.Get("self").(*Facade)
	if inner != root {
		t.Error("self reference should resolve to the same facade")
	}
}

func TestGetHookReceivesContinuation(t *testing.T) {
	var seen []string
	hooks := &Hooks{
		Get: func(target any, key string, receiver *Facade, next func() any) any {
			seen = append(seen, key)
			if receiver == nil {
				t.Error("receiver should be the facade")
			}
			return next()
		},
	}
	root := Observe(map[string]any{
		"nested": map[string]any{"x": 1},
	}, hooks, NewCache()).(*Facade)

	nested := root.Get("nested").(*Facade)
	if got := nested.Get("x"); got != 1 {
		t.Errorf("x = %v, want 1", got)
	}
	if want := []string{"nested", "x"}; !reflect.DeepEqual(seen, want) {
		t.Errorf("hook saw %v, want %v", seen, want)
	}
}

func TestSetHookControlsWrite(t *testing.T) {
	raw := map[string]any{}
	hooks := &Hooks{
		Set: func(target any, key string, value any, receiver *Facade) bool {
			if key == "readonly" {
				return false
			}
			return receiver.Assign(key, value)
		},
	}
	root := Observe(raw, hooks, NewCache()).(*Facade)

	if !root.Set("a", 1) {
		t.Error("Set(a) = false, want true")
	}
	if root.Set("readonly", 1) {
		t.Error("Set(readonly) = true, want false")
	}
	if _, ok := raw["readonly"]; ok {
		t.Error("rejected write reached the underlying map")
	}
	if raw["a"] != 1 {
		t.Errorf("raw[a] = %v, want 1", raw["a"])
	}
}

func TestSetStoresUnderlyingObjects(t *testing.T) {
	cache := NewCache()
	child := Observe(map[string]any{"k": "v"}, nil, cache)
	raw := map[string]any{}
	root := Observe(raw, nil, cache).(*Facade)

	root.Set("child", child)
	if _, ok := raw["child"].(*Facade); ok {
		t.Fatal("facade leaked into the state tree")
	}
	if root.Get("child") != child {
		t.Error("reading the stored object should return the original facade")
	}
}

func TestForwardedOperations(t *testing.T) {
	raw := map[string]any{"b": 2, "a": 1}
	root := Observe(raw, nil, NewCache()).(*Facade)

	if !root.Has("a") || root.Has("missing") {
		t.Error("Has returned wrong results")
	}
	if got, want := root.Keys(), []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
	if !root.Delete("a") {
		t.Error("Delete(a) = false")
	}
	if _, ok := raw["a"]; ok {
		t.Error("Delete did not reach the underlying map")
	}
	if !root.Define("c", 3) || raw["c"] != 3 {
		t.Error("Define did not store the value")
	}
	if v, ok := root.Lookup("b"); !ok || v != 2 {
		t.Errorf("Lookup(b) = %v, %v", v, ok)
	}
}

func TestExplicitHookReplacesDefault(t *testing.T) {
	hooks := &Hooks{
		Has:  func(target any, key string) bool { return true },
		Keys: func(target any) []string { return []string{"virtual"} },
	}
	root := Observe(map[string]any{}, hooks, NewCache()).(*Facade)
	if !root.Has("anything") {
		t.Error("Has hook was not used")
	}
	if got := root.Keys(); !reflect.DeepEqual(got, []string{"virtual"}) {
		t.Errorf("Keys() = %v", got)
	}
}

func TestFrozenWritesFailSilently(t *testing.T) {
	raw := map[string]any{"a": 1}
	root := Observe(raw, nil, NewCache()).(*Facade)
	root.Freeze()

	if !root.Frozen() {
		t.Fatal("Frozen() = false after Freeze")
	}
	if root.Set("a", 2) {
		t.Error("Set on frozen object returned true")
	}
	if root.Delete("a") {
		t.Error("Delete on frozen object returned true")
	}
	if raw["a"] != 1 {
		t.Errorf("a = %v, want 1", raw["a"])
	}
}

func TestArrayFacade(t *testing.T) {
	raw := []any{"x", map[string]any{"n": 1}}
	arr := Observe(raw, nil, NewCache()).(*Facade)

	if arr.Len() != 2 {
		t.Errorf("Len() = %d, want 2", arr.Len())
	}
	if got, _ := arr.Lookup("length"); got != 2 {
		t.Errorf("length = %v, want 2", got)
	}
	if _, ok := arr.Get("1").(*Facade); !ok {
		t.Error("nested object in array not wrapped")
	}
	if !arr.Set("0", "y") || raw[0] != "y" {
		t.Error("in-range write failed")
	}
	if arr.Set("2", "z") {
		t.Error("out-of-range write should fail")
	}
	if got := arr.Keys(); !reflect.DeepEqual(got, []string{"0", "1"}) {
		t.Errorf("Keys() = %v", got)
	}
}

func TestFrozenSurvivesFacadeCollection(t *testing.T) {
	cache := NewCache()
	raw := map[string]any{"box": map[string]any{"value": 1}}
	root := Observe(raw, nil, cache).(*Facade)

	func() {
		box := root.Get("box").(*Facade)
		box.Freeze()
	}()
	for i := 0; i < 5; i++ {
		runtime.GC()
	}

	box := root.Get("box").(*Facade)
	if !box.Frozen() {
		t.Error("Frozen() = false after the freezing facade was collected")
	}
	if box.Set("value", 3) {
		t.Error("Set on frozen object returned true")
	}
	if got := raw["box"].(map[string]any)["value"]; got != 1 {
		t.Errorf("value = %v, want 1", got)
	}
}

func TestFrozenEmptySlice(t *testing.T) {
	arr := Observe([]any{}, nil, NewCache()).(*Facade)
	arr.Freeze()
	if !arr.Frozen() {
		t.Error("Frozen() = false for an empty slice")
	}
}
