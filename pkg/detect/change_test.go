package detect

import "testing"

func TestChanged(t *testing.T) {
	chairClose := Detection{Label: "chair", Distance: 0.8, Position: PositionCenter}
	chairCloseJitter := Detection{Label: "chair", Distance: 0.85, Position: PositionCenter}
	chairNearby := Detection{Label: "chair", Distance: 1.5, Position: PositionCenter}
	personLeft := Detection{Label: "person", Distance: 2.2, Position: PositionLeft}

	tests := []struct {
		name   string
		prev   []Detection
		cur    []Detection
		expect bool
	}{
		{
			name:   "nil previous always changed",
			prev:   nil,
			cur:    nil,
			expect: true,
		},
		{
			name:   "count changed",
			prev:   []Detection{chairClose},
			cur:    []Detection{chairClose, personLeft},
			expect: true,
		},
		{
			name:   "identical scene unchanged",
			prev:   []Detection{chairClose, personLeft},
			cur:    []Detection{personLeft, chairClose},
			expect: false,
		},
		{
			name:   "distance jitter within bucket unchanged",
			prev:   []Detection{chairClose},
			cur:    []Detection{chairCloseJitter},
			expect: false,
		},
		{
			name:   "bucket crossing changed",
			prev:   []Detection{chairClose},
			cur:    []Detection{chairNearby},
			expect: true,
		},
		{
			name:   "position change changed",
			prev:   []Detection{personLeft},
			cur:    []Detection{{Label: "person", Distance: 2.2, Position: PositionCenter}},
			expect: true,
		},
		{
			name:   "both empty after first frame unchanged",
			prev:   []Detection{},
			cur:    nil,
			expect: false,
		},
		{
			name:   "duplicate labels need matching counts",
			prev:   []Detection{chairClose, chairClose},
			cur:    []Detection{chairClose, chairNearby},
			expect: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Changed(tc.prev, tc.cur); got != tc.expect {
				t.Errorf("Changed: got %v, want %v", got, tc.expect)
			}
		})
	}
}
