package codec

import "testing"

func TestGuards_MarkOnce(t *testing.T) {
	g := NewGuards()
	if !g.MarkOnce("text_start:item_1") {
		t.Error("first MarkOnce = false, want true")
	}
	if g.MarkOnce("text_start:item_1") {
		t.Error("second MarkOnce = true, want false")
	}
	if !g.MarkOnce("text_end:item_1") {
		t.Error("distinct key MarkOnce = false, want true")
	}
	if !g.Marked("text_start:item_1") {
		t.Error("Marked = false after MarkOnce")
	}
}

func TestToolCalls_OpenAppendClose(t *testing.T) {
	tc := NewToolCalls()

	st, opened := tc.Open("call_1", "search")
	if !opened {
		t.Fatal("Open() opened = false, want true")
	}
	st.Args.WriteString(`{"q":`)

	again, opened := tc.Open("call_1", "")
	if opened {
		t.Error("re-Open() opened = true, want false")
	}
	if again != st {
		t.Error("re-Open() returned a different buffer")
	}
	again.Args.WriteString(`"rust"}`)

	closed := tc.Close("call_1")
	if closed == nil {
		t.Fatal("Close() = nil")
	}
	if got := closed.Args.String(); got != `{"q":"rust"}` {
		t.Errorf("accumulated args = %q, want %q", got, `{"q":"rust"}`)
	}
	if closed.Name != "search" {
		t.Errorf("Name = %q, want %q", closed.Name, "search")
	}
	if tc.Get("call_1") != nil {
		t.Error("Get() after Close() != nil")
	}
}

func TestItemIndex(t *testing.T) {
	x := NewItemIndex()
	x.Bind(0, "item_abc")
	id, ok := x.Lookup(0)
	if !ok || id != "item_abc" {
		t.Errorf("Lookup(0) = %q, %v; want item_abc, true", id, ok)
	}
	if _, ok := x.Lookup(1); ok {
		t.Error("Lookup(1) = true, want false")
	}
}

func TestValidatePolicy(t *testing.T) {
	if err := ValidatePolicy(PolicyDrop); err != nil {
		t.Errorf("ValidatePolicy(PolicyDrop) = %v", err)
	}
	var unset UnsupportedPolicy
	if err := ValidatePolicy(unset); err == nil {
		t.Error("ValidatePolicy(zero) = nil, want error")
	}
}

func TestParsePolicy(t *testing.T) {
	for _, s := range []string{"drop", "downgrade", "error"} {
		if _, err := ParsePolicy(s); err != nil {
			t.Errorf("ParsePolicy(%q) error = %v", s, err)
		}
	}
	if _, err := ParsePolicy("silent"); err == nil {
		t.Error("ParsePolicy(silent) = nil error, want error")
	}
}
