package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSortBoxes_ReadingOrder(t *testing.T) {
	boxes := []Box{
		{Text: "c", X0: 10, Y0: 50},
		{Text: "b", X0: 90, Y0: 10},
		{Text: "a", X0: 10, Y0: 10},
	}
	SortBoxes(boxes)
	if boxes[0].Text != "a" || boxes[1].Text != "b" || boxes[2].Text != "c" {
		t.Errorf("unexpected order: %v %v %v", boxes[0].Text, boxes[1].Text, boxes[2].Text)
	}
}

func TestFilterBoxes_Threshold(t *testing.T) {
	boxes := []Box{
		{Text: "keep", Confidence: 0.9},
		{Text: "drop", Confidence: 0.2},
		{Text: "edge", Confidence: 0.4},
	}
	out := FilterBoxes(boxes, 0.4)
	if len(out) != 2 {
		t.Fatalf("expected 2 boxes, got %d", len(out))
	}
	if out[0].Text != "keep" || out[1].Text != "edge" {
		t.Errorf("unexpected survivors: %v", out)
	}
}

func TestToText_JoinsAndTrims(t *testing.T) {
	boxes := []Box{
		{Text: " Q3 revenue "},
		{Text: ""},
		{Text: "rose 4%"},
	}
	if got := ToText(boxes); got != "Q3 revenue rose 4%" {
		t.Errorf("unexpected text: %q", got)
	}
}

func TestHTTPClient_Recognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ocr" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["image_b64"] == "" {
			t.Error("expected image payload")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"boxes": []map[string]any{
				{"text": "rose 4%", "confidence": 0.95, "bbox": []int{60, 10, 120, 22}},
				{"text": "Q3 revenue", "confidence": 0.98, "bbox": []int{10, 10, 55, 22}},
				{"text": "noise", "confidence": 0.1, "bbox": []int{10, 40, 30, 50}},
			},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "sk-test", 5*time.Second)
	defer c.Close()

	boxes, err := c.Recognize(context.Background(), []byte("fake-png"), 0.4)
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if len(boxes) != 2 {
		t.Fatalf("expected low-confidence box filtered, got %d boxes", len(boxes))
	}
	if got := ToText(boxes); got != "Q3 revenue rose 4%" {
		t.Errorf("expected reading order, got %q", got)
	}
}

func TestHTTPClient_RecognizeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", 5*time.Second)
	if _, err := c.Recognize(context.Background(), []byte("png"), 0.4); err == nil {
		t.Error("expected error on non-200 status")
	}
}
