package clouddrive

import "testing"

func TestIsMediaPath(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"shows/pilot.mkv", true},
		{"Movies/Heat.MP4", true},
		{"clip.webm", true},
		{"notes.txt", false},
		{"archive.mkv.part", false},
		{"cover.jpg", false},
	}
	for _, tc := range cases {
		if got := IsMediaPath(tc.path); got != tc.want {
			t.Errorf("IsMediaPath(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}
