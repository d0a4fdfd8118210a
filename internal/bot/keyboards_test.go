package bot

import "testing"

func TestParseCallbackRoundTrip(t *testing.T) {
	tests := []struct {
		data   string
		action string
		value  string
	}{
		{"pause:" + testGID, "pause", testGID},
		{"history_page:3", "history_page", "3"},
		{"page_info", "page_info", ""},
		{"clear_history_confirm", "clear_history_confirm", ""},
	}
	for _, tt := range tests {
		action, value := parseCallback(tt.data)
		if action != tt.action || value != tt.value {
			t.Errorf("parseCallback(%q) = (%q, %q), want (%q, %q)",
				tt.data, action, value, tt.action, tt.value)
		}
		if got := callbackData(action, value); got != tt.data {
			t.Errorf("callbackData(%q, %q) = %q, want %q", action, value, got, tt.data)
		}
	}
}

func TestControlKeyboardActions(t *testing.T) {
	kb := ControlKeyboard(testGID)
	if len(kb.InlineKeyboard) != 1 || len(kb.InlineKeyboard[0]) != 3 {
		t.Fatalf("control keyboard shape wrong: %+v", kb)
	}
	want := []string{"pause:" + testGID, "resume:" + testGID, "remove:" + testGID}
	for i, btn := range kb.InlineKeyboard[0] {
		if btn.CallbackData != want[i] {
			t.Errorf("button %d data = %q, want %q", i, btn.CallbackData, want[i])
		}
	}
}

func TestPaginationKeyboardMiddlePage(t *testing.T) {
	kb := paginationKeyboard(3, 5, actionHistoryPage)
	row := kb.InlineKeyboard[0]
	if len(row) != 5 {
		t.Fatalf("middle page should show all five buttons, got %d", len(row))
	}
	want := []string{
		"history_page:1", "history_page:2", "page_info", "history_page:4", "history_page:5",
	}
	for i, btn := range row {
		if btn.CallbackData != want[i] {
			t.Errorf("button %d data = %q, want %q", i, btn.CallbackData, want[i])
		}
	}
}

func TestPaginationKeyboardFirstPage(t *testing.T) {
	kb := paginationKeyboard(1, 3, actionStatusPage)
	row := kb.InlineKeyboard[0]
	// info, next, last
	if len(row) != 3 {
		t.Fatalf("first page should hide First/Prev, got %d buttons", len(row))
	}
	if row[1].CallbackData != "status_page:2" || row[2].CallbackData != "status_page:3" {
		t.Fatalf("first page navigation wrong: %+v", row)
	}
}

func TestPaginationKeyboardLastPage(t *testing.T) {
	kb := paginationKeyboard(3, 3, actionSearchPage)
	row := kb.InlineKeyboard[0]
	// first, prev, info
	if len(row) != 3 {
		t.Fatalf("last page should hide Next/Last, got %d buttons", len(row))
	}
	if row[0].CallbackData != "search_page:1" || row[1].CallbackData != "search_page:2" {
		t.Fatalf("last page navigation wrong: %+v", row)
	}
}

func TestPaginationKeyboardSinglePage(t *testing.T) {
	kb := paginationKeyboard(1, 1, actionHistoryPage)
	row := kb.InlineKeyboard[0]
	if len(row) != 1 || row[0].CallbackData != "page_info" {
		t.Fatalf("single page should show only the info button, got %+v", row)
	}
}
